package room

import (
	"context"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

// SubscriberEndpoint is the incoming side of a participant towards one
// remote publisher. Its name is the remote participant's name.
type SubscriberEndpoint struct {
	endpoint

	connectedToPublisher bool
	publisher            *PublisherEndpoint
}

func newSubscriberEndpoint(owner *Participant, remoteName string, pipeline mediaplane.Pipeline, cl *cleaner, opts mediaplane.EndpointOptions) *SubscriberEndpoint {
	return &SubscriberEndpoint{
		endpoint: endpoint{
			owner:    owner,
			name:     remoteName,
			pipeline: pipeline,
			opts:     opts,
			cleaner:  cl,
		},
	}
}

// CreateEndpoint builds the WebRTC endpoint. On a creation race the
// previous endpoint is returned.
func (s *SubscriberEndpoint) CreateEndpoint(ctx context.Context) (mediaplane.WebRTCEndpoint, error) {
	return s.create(ctx)
}

// Subscribe negotiates the receiving connection and wires the publisher's
// media into it.
func (s *SubscriberEndpoint) Subscribe(ctx context.Context, sdpOffer string, pub *PublisherEndpoint) (string, error) {
	s.mu.Lock()
	ep := s.ep
	s.mu.Unlock()
	if ep == nil {
		return "", newError(MediaEndpointError, "subscriber endpoint to %s not created", s.name)
	}

	answer, err := ep.ProcessOffer(ctx, sdpOffer)
	if err != nil {
		return "", newError(MediaSdpError, "could not process offer of subscriber to %s: %v", s.name, err)
	}
	if err := ep.GatherCandidates(ctx); err != nil {
		return "", newError(MediaEndpointError, "could not gather candidates of subscriber to %s: %v", s.name, err)
	}
	if err := pub.Connect(ctx, ep, mediaplane.MediaAll); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.publisher = pub
	s.connectedToPublisher = true
	s.mu.Unlock()
	return answer, nil
}

func (s *SubscriberEndpoint) ConnectedToPublisher() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedToPublisher
}

// Mute detaches the requested media legs coming from the publisher.
func (s *SubscriberEndpoint) Mute(ctx context.Context, t domain.MutedMediaType) error {
	s.mu.Lock()
	pub, ep := s.publisher, s.ep
	s.mu.Unlock()
	if pub == nil || ep == nil {
		return newError(MediaMuteError, "subscriber to %s is not connected to a publisher", s.name)
	}

	var err error
	switch t {
	case domain.MutedAll:
		err = pub.DisconnectFrom(ctx, ep, mediaplane.MediaAll)
	case domain.MutedAudio:
		err = pub.DisconnectFrom(ctx, ep, mediaplane.MediaAudio)
	case domain.MutedVideo:
		err = pub.DisconnectFrom(ctx, ep, mediaplane.MediaVideo)
	default:
		return newError(MediaMuteError, "unsupported mute type %s for subscriber to %s", t, s.name)
	}
	if err != nil {
		return newError(MediaMuteError, "could not mute %s of subscriber to %s: %v", t, s.name, err)
	}

	s.mu.Lock()
	s.muteType = resolveMuteType(s.muteType, t)
	s.mu.Unlock()
	return nil
}

// Unmute restores all media legs coming from the publisher.
func (s *SubscriberEndpoint) Unmute(ctx context.Context) error {
	s.mu.Lock()
	pub, ep := s.publisher, s.ep
	s.mu.Unlock()
	if pub == nil || ep == nil {
		return newError(MediaMuteError, "subscriber to %s is not connected to a publisher", s.name)
	}
	if err := pub.Connect(ctx, ep, mediaplane.MediaAll); err != nil {
		return newError(MediaMuteError, "could not unmute subscriber to %s: %v", s.name, err)
	}

	s.mu.Lock()
	s.muteType = domain.MutedNone
	s.mu.Unlock()
	return nil
}
