package room

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

// Participant is one member of a room: a single publisher endpoint plus one
// subscriber endpoint per remote publisher it receives from.
//
// The publisher readiness gate is a one-shot channel: operations that need
// the publisher block on it up to the configured timeout. Unpublishing
// swaps in a fresh publisher together with a fresh gate.
type Participant struct {
	id       domain.ParticipantID
	name     string
	room     *Room
	pipeline mediaplane.Pipeline
	opts     mediaplane.EndpointOptions
	cleaner  *cleaner
	timeout  time.Duration

	pubMu     sync.Mutex
	publisher *PublisherEndpoint
	pubReady  chan struct{}
	pubOnce   *sync.Once

	subMu       sync.RWMutex
	subscribers map[string]*SubscriberEndpoint

	streaming atomic.Bool
	closed    atomic.Bool
}

func newParticipant(id domain.ParticipantID, name string, room *Room, pipeline mediaplane.Pipeline,
	cl *cleaner, timeout time.Duration, opts mediaplane.EndpointOptions, peers []*Participant) *Participant {

	p := &Participant{
		id:          id,
		name:        name,
		room:        room,
		pipeline:    pipeline,
		opts:        opts,
		cleaner:     cl,
		timeout:     timeout,
		pubReady:    make(chan struct{}),
		pubOnce:     new(sync.Once),
		subscribers: make(map[string]*SubscriberEndpoint),
	}
	p.publisher = newPublisherEndpoint(p, pipeline, cl, opts)

	for _, peer := range peers {
		if peer.name == name {
			continue
		}
		p.subscribers[peer.name] = newSubscriberEndpoint(p, peer.name, pipeline, cl, opts)
	}
	return p
}

func (p *Participant) ID() domain.ParticipantID { return p.id }
func (p *Participant) Name() string             { return p.name }
func (p *Participant) Room() *Room              { return p.room }
func (p *Participant) IsStreaming() bool        { return p.streaming.Load() }
func (p *Participant) IsClosed() bool           { return p.closed.Load() }

// CreatePublishingEndpoint builds the publisher endpoint and opens the
// readiness gate once it is usable.
func (p *Participant) CreatePublishingEndpoint(ctx context.Context) error {
	p.pubMu.Lock()
	pub, once, readyCh := p.publisher, p.pubOnce, p.pubReady
	p.pubMu.Unlock()

	ready := func() { once.Do(func() { close(readyCh) }) }
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := pub.CreateEndpoint(cctx, ready); err != nil {
		return err
	}
	if pub.Endpoint() == nil {
		return newError(MediaEndpointError, "unable to create publisher endpoint for %s", p.name)
	}
	return nil
}

// Publisher returns the publisher endpoint, blocking until the readiness
// gate opens or the timeout elapses.
func (p *Participant) Publisher() (*PublisherEndpoint, error) {
	p.pubMu.Lock()
	pub, readyCh := p.publisher, p.pubReady
	p.pubMu.Unlock()

	select {
	case <-readyCh:
		return pub, nil
	case <-time.After(p.timeout):
		return nil, newError(MediaEndpointError,
			"timed out waiting for publisher endpoint of %s to be ready", p.name)
	}
}

// PublishToRoom completes the publish negotiation and marks the
// participant streaming.
func (p *Participant) PublishToRoom(ctx context.Context, sdpType domain.SdpType, sdp string,
	doLoopback bool, loopbackSrc mediaplane.Element, loopbackType mediaplane.MediaType) (string, error) {

	pub, err := p.Publisher()
	if err != nil {
		return "", err
	}
	resp, err := pub.Publish(ctx, sdpType, sdp, doLoopback, loopbackSrc, loopbackType)
	if err != nil {
		return "", err
	}
	p.streaming.Store(true)
	log.Info().Str("module", "room").
		Str("user", p.name).Str("room", string(p.room.Name())).
		Msg("publishing media")
	return resp, nil
}

// PreparePublishConnection generates a server-side offer for the publisher.
func (p *Participant) PreparePublishConnection(ctx context.Context) (string, error) {
	pub, err := p.Publisher()
	if err != nil {
		return "", err
	}
	return pub.PreparePublishConnection(ctx)
}

// ShapePublisherMedia inserts a processing element at the head of the
// publisher's chain.
func (p *Participant) ShapePublisherMedia(ctx context.Context, elem mediaplane.Element, t mediaplane.MediaType) error {
	pub, err := p.Publisher()
	if err != nil {
		return err
	}
	return pub.Apply(ctx, elem, t)
}

// UnshapePublisherMedia removes a previously applied processing element.
func (p *Participant) UnshapePublisherMedia(ctx context.Context, elem mediaplane.Element) error {
	pub, err := p.Publisher()
	if err != nil {
		return err
	}
	return pub.Revert(ctx, elem)
}

// UnpublishMedia releases the current publisher and installs a fresh one
// behind a fresh readiness gate, so the participant can publish again.
func (p *Participant) UnpublishMedia() {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	p.releasePublisherLocked()
	p.publisher = newPublisherEndpoint(p, p.pipeline, p.cleaner, p.opts)
	p.pubReady = make(chan struct{})
	p.pubOnce = new(sync.Once)
	log.Info().Str("module", "room").Str("user", p.name).Msg("unpublished media")
}

// ReceiveMediaFrom negotiates a subscriber endpoint towards sender and
// returns the SDP answer. A concurrent subscribe to the same sender makes
// the loser return an empty answer with no error.
func (p *Participant) ReceiveMediaFrom(ctx context.Context, sender *Participant, sdpOffer string) (string, error) {
	senderName := sender.Name()
	if senderName == p.name {
		return "", newError(UserNotStreaming, "user %s can only loopback media through a publish operation", p.name)
	}

	sub := p.GetNewOrExistingSubscriber(senderName)

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prev, err := sub.CreateEndpoint(cctx)
	if err != nil {
		p.removeSubscriber(senderName)
		return "", err
	}
	if prev != nil {
		log.Warn().Str("module", "room").
			Str("user", p.name).Str("sender", senderName).
			Msg("concurrent subscribe detected, dropping duplicate request")
		return "", nil
	}
	if sub.Endpoint() == nil {
		p.removeSubscriber(senderName)
		return "", newError(MediaEndpointError, "unable to create subscriber endpoint of %s to %s", p.name, senderName)
	}

	pub, err := sender.Publisher()
	if err != nil {
		p.removeSubscriber(senderName)
		return "", err
	}

	answer, err := sub.Subscribe(cctx, sdpOffer, pub)
	if err != nil {
		p.removeSubscriber(senderName)
		p.releaseSubscriberEndpoint(senderName, sub)
		return "", err
	}
	log.Info().Str("module", "room").
		Str("user", p.name).Str("sender", senderName).
		Msg("receiving media")
	return answer, nil
}

// CancelReceivingMedia tears down the subscriber endpoint towards
// senderName, if any.
func (p *Participant) CancelReceivingMedia(senderName string) {
	p.subMu.Lock()
	sub := p.subscribers[senderName]
	delete(p.subscribers, senderName)
	p.subMu.Unlock()

	if sub == nil || sub.Endpoint() == nil {
		log.Warn().Str("module", "room").
			Str("user", p.name).Str("sender", senderName).
			Msg("no subscriber endpoint to remove")
		return
	}
	p.releaseSubscriberEndpoint(senderName, sub)
	log.Info().Str("module", "room").
		Str("user", p.name).Str("sender", senderName).
		Msg("stopped receiving media")
}

// MutePublishedMedia mutes the given legs of the published stream.
func (p *Participant) MutePublishedMedia(ctx context.Context, t domain.MutedMediaType) error {
	if t == domain.MutedNone {
		return newError(MediaMuteError, "mute type not specified for user %s", p.name)
	}
	pub, err := p.Publisher()
	if err != nil {
		return err
	}
	return pub.Mute(ctx, t)
}

// UnmutePublishedMedia restores the published stream. Unmuting an unmuted
// publisher is a no-op.
func (p *Participant) UnmutePublishedMedia(ctx context.Context) error {
	pub, err := p.Publisher()
	if err != nil {
		return err
	}
	if pub.MuteType() == domain.MutedNone {
		log.Warn().Str("module", "room").Str("user", p.name).Msg("published media was not muted")
		return nil
	}
	return pub.Unmute(ctx)
}

// MuteSubscribedMedia mutes the given legs of the stream received from
// senderName.
func (p *Participant) MuteSubscribedMedia(ctx context.Context, senderName string, t domain.MutedMediaType) error {
	if t == domain.MutedNone {
		return newError(MediaMuteError, "mute type not specified for user %s", p.name)
	}
	sub := p.subscriber(senderName)
	if sub == nil || sub.Endpoint() == nil {
		return newError(MediaEndpointError, "subscriber endpoint of %s to %s not found", p.name, senderName)
	}
	return sub.Mute(ctx, t)
}

// UnmuteSubscribedMedia restores the stream received from senderName.
func (p *Participant) UnmuteSubscribedMedia(ctx context.Context, senderName string) error {
	sub := p.subscriber(senderName)
	if sub == nil || sub.Endpoint() == nil {
		return newError(MediaEndpointError, "subscriber endpoint of %s to %s not found", p.name, senderName)
	}
	if sub.MuteType() == domain.MutedNone {
		log.Warn().Str("module", "room").
			Str("user", p.name).Str("sender", senderName).
			Msg("subscribed media was not muted")
		return nil
	}
	return sub.Unmute(ctx)
}

// GetNewOrExistingSubscriber returns the subscriber endpoint towards
// remoteName, creating and registering one if absent. Concurrent callers
// get the same instance.
func (p *Participant) GetNewOrExistingSubscriber(remoteName string) *SubscriberEndpoint {
	candidate := newSubscriberEndpoint(p, remoteName, p.pipeline, p.cleaner, p.opts)
	p.subMu.Lock()
	defer p.subMu.Unlock()
	if existing, ok := p.subscribers[remoteName]; ok {
		return existing
	}
	p.subscribers[remoteName] = candidate
	return candidate
}

func (p *Participant) subscriber(remoteName string) *SubscriberEndpoint {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	return p.subscribers[remoteName]
}

func (p *Participant) removeSubscriber(remoteName string) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	delete(p.subscribers, remoteName)
}

// IsSubscribed reports whether at least one subscriber endpoint is wired
// to a publisher.
func (p *Participant) IsSubscribed() bool {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	for _, sub := range p.subscribers {
		if sub.ConnectedToPublisher() {
			return true
		}
	}
	return false
}

// ConnectedSubscribedEndpoints lists the names of remote publishers this
// participant actually receives from.
func (p *Participant) ConnectedSubscribedEndpoints() []string {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	var names []string
	for name, sub := range p.subscribers {
		if sub.ConnectedToPublisher() {
			names = append(names, name)
		}
	}
	return names
}

// AddIceCandidate routes a client candidate to the endpoint named
// endpointName: the own publisher, or a subscriber created on demand.
func (p *Participant) AddIceCandidate(ctx context.Context, endpointName string, cand mediaplane.ICECandidate) error {
	if p.name == endpointName {
		p.pubMu.Lock()
		pub := p.publisher
		p.pubMu.Unlock()
		return pub.addIceCandidate(ctx, cand)
	}
	return p.GetNewOrExistingSubscriber(endpointName).addIceCandidate(ctx, cand)
}

func (p *Participant) sendIceCandidate(endpointName string, cand mediaplane.ICECandidate) {
	p.room.sendIceCandidate(p.id, endpointName, cand)
}

func (p *Participant) sendMediaError(ev mediaplane.ErrorEvent) {
	desc := ev.Kind + ": " + ev.Description
	log.Warn().Str("module", "room").
		Str("user", p.name).Str("source", ev.Source).
		Msg("media error: " + desc)
	p.room.sendMediaError(p.id, desc)
}

// Close releases every endpoint of the participant. Idempotent; the closed
// flag flips first so concurrent operations fail fast. Failures during
// release are logged only.
func (p *Participant) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		log.Warn().Str("module", "room").Str("user", p.name).Msg("participant already closed")
		return
	}
	log.Debug().Str("module", "room").Str("user", p.name).Msg("closing participant")

	p.subMu.Lock()
	subs := p.subscribers
	p.subscribers = make(map[string]*SubscriberEndpoint)
	p.subMu.Unlock()

	for remote, sub := range subs {
		if sub.Endpoint() == nil {
			log.Warn().Str("module", "room").
				Str("user", p.name).Str("sender", remote).
				Msg("no subscriber endpoint to release")
			continue
		}
		p.releaseSubscriberEndpoint(remote, sub)
	}

	p.pubMu.Lock()
	p.releasePublisherLocked()
	p.pubMu.Unlock()
}

func (p *Participant) releasePublisherLocked() {
	pub := p.publisher
	if pub == nil || pub.Endpoint() == nil {
		log.Warn().Str("module", "room").Str("user", p.name).Msg("no publisher endpoint to release")
		return
	}
	p.streaming.Store(false)
	pub.unregisterErrorListeners()
	for _, el := range pub.MediaElements() {
		p.cleaner.release(p.name, el.ID(), el.Release)
	}
	ep := pub.Endpoint()
	p.cleaner.release(p.name, ep.ID(), ep.Release)
}

func (p *Participant) releaseSubscriberEndpoint(remoteName string, sub *SubscriberEndpoint) {
	sub.unregisterErrorListeners()
	ep := sub.Endpoint()
	if ep == nil {
		log.Warn().Str("module", "room").
			Str("user", p.name).Str("sender", remoteName).
			Msg("no subscriber endpoint to release")
		return
	}
	p.cleaner.release(p.name, ep.ID(), ep.Release)
}
