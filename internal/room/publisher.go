package room

import (
	"context"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

// PublisherEndpoint is the outgoing side of a participant: its WebRTC
// endpoint, an ordered chain of processing elements and a terminating
// passthrough every subscriber hangs off.
//
// Media flows endpoint -> elements[0] -> ... -> elements[n-1] -> passThru.
type PublisherEndpoint struct {
	endpoint

	passThru  mediaplane.Element
	elements  []mediaplane.Element
	connected bool
}

func newPublisherEndpoint(owner *Participant, pipeline mediaplane.Pipeline, cl *cleaner, opts mediaplane.EndpointOptions) *PublisherEndpoint {
	return &PublisherEndpoint{
		endpoint: endpoint{
			owner:    owner,
			name:     owner.name,
			pipeline: pipeline,
			opts:     opts,
			cleaner:  cl,
		},
	}
}

// CreateEndpoint builds the WebRTC endpoint and its passthrough, then fires
// ready. On a creation race the previous endpoint is returned and nothing
// is rebuilt. A passthrough failure rolls the endpoint back too, so a retry
// rebuilds both instead of finding a half-created publisher.
func (p *PublisherEndpoint) CreateEndpoint(ctx context.Context, ready func()) (mediaplane.WebRTCEndpoint, error) {
	prev, err := p.create(ctx)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		pt, err := p.pipeline.CreatePassThrough(ctx)
		if err != nil {
			p.rollbackCreate()
			return nil, newError(MediaEndpointError, "unable to create passthrough for publisher %s: %v", p.name, err)
		}
		p.mu.Lock()
		p.passThru = pt
		p.mu.Unlock()
	}
	ready()
	return prev, nil
}

// Publish feeds the negotiation SDP to the endpoint, starts candidate
// gathering and optionally wires a loopback. Returns the SDP response (an
// answer for an offer, the local description for an answer).
func (p *PublisherEndpoint) Publish(ctx context.Context, sdpType domain.SdpType, sdp string,
	doLoopback bool, loopbackSrc mediaplane.Element, loopbackType mediaplane.MediaType) (string, error) {

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ep == nil {
		return "", newError(MediaEndpointError, "publisher endpoint %s not created", p.name)
	}

	var resp string
	var err error
	switch sdpType {
	case domain.SdpOffer:
		resp, err = p.ep.ProcessOffer(ctx, sdp)
	case domain.SdpAnswer:
		resp, err = p.ep.ProcessAnswer(ctx, sdp)
	default:
		return "", newError(MediaSdpError, "sdp type %s not supported", sdpType)
	}
	if err != nil {
		return "", newError(MediaSdpError, "could not process %s for publisher %s: %v", sdpType, p.name, err)
	}
	if err := p.ep.GatherCandidates(ctx); err != nil {
		return "", newError(MediaEndpointError, "could not gather candidates for publisher %s: %v", p.name, err)
	}

	if doLoopback {
		if loopbackSrc == nil {
			err = p.connectLocked(ctx, p.ep, loopbackType)
		} else {
			err = loopbackSrc.Connect(ctx, p.ep, loopbackType)
			if err != nil {
				err = newError(MediaEndpointError, "could not connect loopback source for publisher %s: %v", p.name, err)
			}
		}
		if err != nil {
			return "", err
		}
	}
	return resp, nil
}

// PreparePublishConnection starts a server-initiated negotiation and
// returns the generated offer.
func (p *PublisherEndpoint) PreparePublishConnection(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ep == nil {
		return "", newError(MediaEndpointError, "publisher endpoint %s not created", p.name)
	}
	offer, err := p.ep.GenerateOffer(ctx)
	if err != nil {
		return "", newError(MediaSdpError, "could not generate offer for publisher %s: %v", p.name, err)
	}
	return offer, nil
}

// Connect wires this publisher's passthrough into sink, lazily connecting
// the internal chain on first use.
func (p *PublisherEndpoint) Connect(ctx context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked(ctx, sink, t)
}

func (p *PublisherEndpoint) connectLocked(ctx context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	if err := p.innerConnectLocked(ctx); err != nil {
		return err
	}
	if err := p.passThru.Connect(ctx, sink, t); err != nil {
		return newError(MediaEndpointError, "could not connect publisher %s to sink %s: %v", p.name, sink.ID(), err)
	}
	return nil
}

func (p *PublisherEndpoint) innerConnectLocked(ctx context.Context) error {
	if p.connected {
		return nil
	}
	if p.ep == nil {
		return newError(MediaEndpointError, "publisher endpoint %s not created", p.name)
	}
	var current mediaplane.Element = p.ep
	for _, el := range p.elements {
		if err := current.Connect(ctx, el, mediaplane.MediaAll); err != nil {
			return newError(MediaEndpointError, "could not wire element %s of publisher %s: %v", el.ID(), p.name, err)
		}
		current = el
	}
	if err := current.Connect(ctx, p.passThru, mediaplane.MediaAll); err != nil {
		return newError(MediaEndpointError, "could not wire passthrough of publisher %s: %v", p.name, err)
	}
	p.connected = true
	return nil
}

// DisconnectFrom removes the wiring of the given media type towards sink.
func (p *PublisherEndpoint) DisconnectFrom(ctx context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.passThru == nil {
		return newError(MediaEndpointError, "publisher endpoint %s not created", p.name)
	}
	if err := p.passThru.Disconnect(ctx, sink, t); err != nil {
		return newError(MediaEndpointError, "could not disconnect publisher %s from sink %s: %v", p.name, sink.ID(), err)
	}
	return nil
}

// Apply splices elem at the head of the processing chain, right after the
// WebRTC endpoint.
func (p *PublisherEndpoint) Apply(ctx context.Context, elem mediaplane.Element, t mediaplane.MediaType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		first := p.headLocked()
		if err := p.ep.Disconnect(ctx, first, t); err != nil {
			return newError(MediaEndpointError, "could not detach head of publisher %s: %v", p.name, err)
		}
		if err := elem.Connect(ctx, first, t); err != nil {
			return newError(MediaEndpointError, "could not wire element %s into publisher %s: %v", elem.ID(), p.name, err)
		}
		if err := p.ep.Connect(ctx, elem, t); err != nil {
			return newError(MediaEndpointError, "could not wire element %s into publisher %s: %v", elem.ID(), p.name, err)
		}
	}
	p.elements = append([]mediaplane.Element{elem}, p.elements...)
	return nil
}

// Revert removes elem from the chain, reconnecting its neighbors, and
// releases it asynchronously.
func (p *PublisherEndpoint) Revert(ctx context.Context, elem mediaplane.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, el := range p.elements {
		if el.ID() == elem.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return newError(GenericError, "media element %s not found in publisher %s", elem.ID(), p.name)
	}

	if p.connected {
		var from mediaplane.Element = p.ep
		if idx > 0 {
			from = p.elements[idx-1]
		}
		var to mediaplane.Element = p.passThru
		if idx+1 < len(p.elements) {
			to = p.elements[idx+1]
		}
		if err := from.Disconnect(ctx, elem, mediaplane.MediaAll); err != nil {
			return newError(MediaEndpointError, "could not detach element %s of publisher %s: %v", elem.ID(), p.name, err)
		}
		if err := elem.Disconnect(ctx, to, mediaplane.MediaAll); err != nil {
			return newError(MediaEndpointError, "could not detach element %s of publisher %s: %v", elem.ID(), p.name, err)
		}
		if err := from.Connect(ctx, to, mediaplane.MediaAll); err != nil {
			return newError(MediaEndpointError, "could not bridge around element %s of publisher %s: %v", elem.ID(), p.name, err)
		}
	}

	p.elements = append(p.elements[:idx], p.elements[idx+1:]...)
	p.cleaner.release(p.name, elem.ID(), elem.Release)
	return nil
}

// Mute cuts the requested media legs between the endpoint and the chain.
func (p *PublisherEndpoint) Mute(ctx context.Context, t domain.MutedMediaType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ep == nil {
		return newError(MediaMuteError, "publisher endpoint %s not created", p.name)
	}
	sink := p.headLocked()

	var err error
	switch t {
	case domain.MutedAll:
		err = p.ep.Disconnect(ctx, sink, mediaplane.MediaAll)
	case domain.MutedAudio:
		err = p.ep.Disconnect(ctx, sink, mediaplane.MediaAudio)
	case domain.MutedVideo:
		err = p.ep.Disconnect(ctx, sink, mediaplane.MediaVideo)
	default:
		return newError(MediaMuteError, "unsupported mute type %s for publisher %s", t, p.name)
	}
	if err != nil {
		return newError(MediaMuteError, "could not mute %s of publisher %s: %v", t, p.name, err)
	}
	p.muteType = resolveMuteType(p.muteType, t)
	return nil
}

// Unmute restores all media legs between the endpoint and the chain.
func (p *PublisherEndpoint) Unmute(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ep == nil {
		return newError(MediaMuteError, "publisher endpoint %s not created", p.name)
	}
	sink := p.headLocked()
	if err := p.ep.Connect(ctx, sink, mediaplane.MediaAll); err != nil {
		return newError(MediaMuteError, "could not unmute publisher %s: %v", p.name, err)
	}
	p.muteType = domain.MutedNone
	return nil
}

func (p *PublisherEndpoint) headLocked() mediaplane.Element {
	if len(p.elements) > 0 {
		return p.elements[0]
	}
	return p.passThru
}

// MediaElements returns everything that must be released besides the
// WebRTC endpoint itself.
func (p *PublisherEndpoint) MediaElements() []mediaplane.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]mediaplane.Element, 0, len(p.elements)+1)
	out = append(out, p.elements...)
	if p.passThru != nil {
		out = append(out, p.passThru)
	}
	return out
}
