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

// Room owns one media pipeline and the participants attached to it.
type Room struct {
	name          domain.RoomName
	client        mediaplane.Client
	handler       Handler
	cleaner       *cleaner
	timeout       time.Duration
	destroyClient bool

	mu           sync.RWMutex
	participants map[domain.ParticipantID]*Participant

	plMu     sync.Mutex
	pipeline mediaplane.Pipeline
	plErrSub string

	closed atomic.Bool
}

func newRoom(name domain.RoomName, client mediaplane.Client, handler Handler,
	cl *cleaner, timeout time.Duration, destroyClient bool) *Room {

	return &Room{
		name:          name,
		client:        client,
		handler:       handler,
		cleaner:       cl,
		timeout:       timeout,
		destroyClient: destroyClient,
		participants:  make(map[domain.ParticipantID]*Participant),
	}
}

func (r *Room) Name() domain.RoomName { return r.name }
func (r *Room) IsClosed() bool        { return r.closed.Load() }

// Join adds a participant, lazily creating the media pipeline on first
// join. Duplicate user names are rejected.
func (r *Room) Join(ctx context.Context, id domain.ParticipantID, userName string, dataChannels, web bool) (*Participant, error) {
	if r.closed.Load() {
		return nil, newError(RoomClosed, "user %s cannot join room %s: room is closed", userName, r.name)
	}
	if err := r.createPipeline(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the lock: a close that raced past the first check has
	// already drained the map, and the participant must not slip in after.
	if r.closed.Load() {
		return nil, newError(RoomClosed, "user %s cannot join room %s: room is closed", userName, r.name)
	}
	for _, p := range r.participants {
		if p.Name() == userName {
			return nil, newError(UserAlreadyExists, "user %s already exists in room %s", userName, r.name)
		}
	}
	peers := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		peers = append(peers, p)
	}
	p := newParticipant(id, userName, r, r.pipeline, r.cleaner, r.timeout,
		mediaplane.EndpointOptions{DataChannels: dataChannels, Web: web}, peers)
	r.participants[id] = p

	log.Info().Str("module", "room").
		Str("room", string(r.name)).Str("user", userName).
		Msg("participant joined")
	return p, nil
}

// Leave removes and closes the participant.
func (r *Room) Leave(id domain.ParticipantID) error {
	r.mu.Lock()
	p, ok := r.participants[id]
	if ok {
		delete(r.participants, id)
	}
	r.mu.Unlock()

	if !ok {
		return newError(UserNotFound, "participant %s not found in room %s", id, r.name)
	}
	p.Close()
	log.Info().Str("module", "room").
		Str("room", string(r.name)).Str("user", p.Name()).
		Msg("participant left")
	return nil
}

// Close shuts the room down: closes every participant, releases the
// pipeline and, when the provider dedicates clients per room, the client.
// Idempotent.
func (r *Room) Close(ctx context.Context) {
	if !r.closed.CompareAndSwap(false, true) {
		log.Warn().Str("module", "room").Str("room", string(r.name)).Msg("room already closed")
		return
	}

	r.mu.Lock()
	parts := r.participants
	r.participants = make(map[domain.ParticipantID]*Participant)
	r.mu.Unlock()

	for _, p := range parts {
		p.Close()
	}
	r.closePipeline()

	if r.destroyClient {
		if err := r.client.Close(); err != nil {
			log.Warn().Err(err).Str("module", "room").
				Str("room", string(r.name)).
				Msg("could not close media plane client")
		}
	}
	log.Info().Str("module", "room").Str("room", string(r.name)).Msg("room closed")
}

func (r *Room) createPipeline(ctx context.Context) error {
	r.plMu.Lock()
	defer r.plMu.Unlock()
	if r.pipeline != nil {
		return nil
	}
	if r.closed.Load() {
		return newError(RoomClosed, "room %s is closed", r.name)
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	pl, err := r.client.CreatePipeline(cctx)
	if err != nil {
		return newError(GenericError, "unable to create media pipeline for room %s: %v", r.name, err)
	}
	r.plErrSub = pl.OnError(func(ev mediaplane.ErrorEvent) {
		desc := ev.Kind + ": " + ev.Description
		log.Warn().Str("module", "room").
			Str("room", string(r.name)).Str("source", ev.Source).
			Msg("pipeline error: " + desc)
		r.handler.OnPipelineError(r.name, r.ParticipantIDs(), desc)
	})
	r.pipeline = pl
	log.Debug().Str("module", "room").
		Str("room", string(r.name)).Str("pipeline", pl.ID()).
		Msg("pipeline created")
	return nil
}

func (r *Room) closePipeline() {
	r.plMu.Lock()
	defer r.plMu.Unlock()
	if r.pipeline == nil {
		return
	}
	r.pipeline.OffError(r.plErrSub)
	pl := r.pipeline
	r.pipeline = nil
	r.cleaner.release(string(r.name), pl.ID(), pl.Release)
}

// NewPublisher pre-creates subscriber endpoints towards the new publisher
// on every other participant.
func (r *Room) NewPublisher(p *Participant) {
	for _, other := range r.Participants() {
		if other.ID() == p.ID() {
			continue
		}
		other.GetNewOrExistingSubscriber(p.Name())
	}
}

// CancelPublisher tears down the subscriptions of every other participant
// towards p.
func (r *Room) CancelPublisher(p *Participant) {
	for _, other := range r.Participants() {
		if other.ID() == p.ID() {
			continue
		}
		other.CancelReceivingMedia(p.Name())
	}
}

func (r *Room) Participants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

func (r *Room) ParticipantIDs() []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParticipantID, 0, len(r.participants))
	for id := range r.participants {
		out = append(out, id)
	}
	return out
}

func (r *Room) Participant(id domain.ParticipantID) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants[id]
}

func (r *Room) ParticipantByName(name string) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.participants {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Pipeline exposes the room's pipeline for element factories. Nil until
// the first participant joined.
func (r *Room) Pipeline() mediaplane.Pipeline {
	r.plMu.Lock()
	defer r.plMu.Unlock()
	return r.pipeline
}

func (r *Room) sendIceCandidate(pid domain.ParticipantID, endpointName string, cand mediaplane.ICECandidate) {
	r.handler.OnIceCandidate(r.name, pid, endpointName, cand)
}

func (r *Room) sendMediaError(pid domain.ParticipantID, description string) {
	r.handler.OnMediaElementError(r.name, pid, description)
}
