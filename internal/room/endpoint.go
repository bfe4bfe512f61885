package room

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

// endpoint is the shared state of publisher and subscriber endpoints: the
// lazily created WebRTC endpoint, the candidate buffer for candidates that
// arrive before creation, and the mute state.
type endpoint struct {
	owner    *Participant
	name     string
	pipeline mediaplane.Pipeline
	opts     mediaplane.EndpointOptions
	cleaner  *cleaner

	mu         sync.Mutex
	ep         mediaplane.WebRTCEndpoint
	muteType   domain.MutedMediaType
	candidates []mediaplane.ICECandidate
	errSubs    []string
}

// create builds the remote endpoint if it does not exist yet. When another
// goroutine won the creation race the existing endpoint is returned as prev
// and nothing else happens. The mutex is held across the remote call so a
// half-created endpoint is never observable.
func (e *endpoint) create(ctx context.Context) (prev mediaplane.WebRTCEndpoint, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ep != nil {
		return e.ep, nil
	}

	ep, err := e.pipeline.CreateWebRTCEndpoint(ctx, e.opts)
	if err != nil {
		return nil, newError(MediaEndpointError, "unable to create endpoint %s: %v", e.name, err)
	}
	e.ep = ep

	ep.OnICECandidate(func(cand mediaplane.ICECandidate) {
		e.owner.sendIceCandidate(e.name, cand)
	})
	sub := ep.OnError(func(ev mediaplane.ErrorEvent) {
		e.owner.sendMediaError(ev)
	})
	e.errSubs = append(e.errSubs, sub)

	for _, cand := range e.candidates {
		if err := ep.AddICECandidate(ctx, cand); err != nil {
			log.Error().Err(err).Str("module", "room").
				Str("endpoint", e.name).
				Msg("could not flush buffered ICE candidate")
		}
	}
	e.candidates = nil

	return nil, nil
}

// addIceCandidate forwards the candidate to the remote endpoint, buffering
// it when the endpoint does not exist yet.
func (e *endpoint) addIceCandidate(ctx context.Context, cand mediaplane.ICECandidate) error {
	e.mu.Lock()
	if e.ep == nil {
		e.candidates = append(e.candidates, cand)
		e.mu.Unlock()
		return nil
	}
	ep := e.ep
	e.mu.Unlock()

	if err := ep.AddICECandidate(ctx, cand); err != nil {
		return newError(MediaEndpointError, "could not add ICE candidate to endpoint %s: %v", e.name, err)
	}
	return nil
}

func (e *endpoint) Endpoint() mediaplane.WebRTCEndpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ep
}

func (e *endpoint) EndpointName() string {
	return e.name
}

func (e *endpoint) MuteType() domain.MutedMediaType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muteType
}

// rollbackCreate undoes create after a later assembly step failed: the
// endpoint is detached and released so a retry starts from scratch.
// Candidates flushed into the discarded endpoint are gone with it; new
// ones buffer again.
func (e *endpoint) rollbackCreate() {
	e.mu.Lock()
	ep := e.ep
	if ep == nil {
		e.mu.Unlock()
		return
	}
	e.ep = nil
	for _, id := range e.errSubs {
		ep.OffError(id)
	}
	e.errSubs = nil
	e.mu.Unlock()

	log.Warn().Str("module", "room").
		Str("endpoint", e.name).
		Msg("rolling back half-created endpoint")
	e.cleaner.release(e.owner.name, ep.ID(), ep.Release)
}

// unregisterErrorListeners detaches the error subscriptions before release
// so late events do not reach a participant that is going away.
func (e *endpoint) unregisterErrorListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ep == nil {
		return
	}
	for _, id := range e.errSubs {
		e.ep.OffError(id)
	}
	e.errSubs = nil
}

// resolveMuteType merges a new mute request into the current state: muting
// the remaining leg of a half-muted endpoint mutes everything.
func resolveMuteType(current, requested domain.MutedMediaType) domain.MutedMediaType {
	switch {
	case requested == domain.MutedAll:
		return domain.MutedAll
	case current == domain.MutedAudio && requested == domain.MutedVideo:
		return domain.MutedAll
	case current == domain.MutedVideo && requested == domain.MutedAudio:
		return domain.MutedAll
	default:
		return requested
	}
}
