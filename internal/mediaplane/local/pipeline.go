package local

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/mediaplane"
)

// Pipeline is the element container of one room.
type Pipeline struct {
	id  string
	cfg webrtc.Configuration

	mu       sync.Mutex
	elements map[string]mediaplane.Element
	released bool

	errMu   sync.RWMutex
	errSubs map[string]func(mediaplane.ErrorEvent)
}

func newPipeline(cfg webrtc.Configuration) *Pipeline {
	return &Pipeline{
		id:       uuid.NewString(),
		cfg:      cfg,
		elements: make(map[string]mediaplane.Element),
		errSubs:  make(map[string]func(mediaplane.ErrorEvent)),
	}
}

func (pl *Pipeline) ID() string { return pl.id }

func (pl *Pipeline) CreateWebRTCEndpoint(_ context.Context, opts mediaplane.EndpointOptions) (mediaplane.WebRTCEndpoint, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.released {
		return nil, errors.New("pipeline released")
	}
	ep, err := newEndpoint(pl, pl.cfg, opts)
	if err != nil {
		return nil, err
	}
	pl.elements[ep.ID()] = ep
	log.Debug().Str("module", "mediaplane").
		Str("pipeline", pl.id).Str("endpoint", ep.ID()).
		Msg("endpoint created")
	return ep, nil
}

func (pl *Pipeline) CreatePassThrough(_ context.Context) (mediaplane.Element, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if pl.released {
		return nil, errors.New("pipeline released")
	}
	pt := newPassThrough(pl)
	pl.elements[pt.ID()] = pt
	return pt, nil
}

func (pl *Pipeline) OnError(fn func(mediaplane.ErrorEvent)) string {
	id := uuid.NewString()
	pl.errMu.Lock()
	defer pl.errMu.Unlock()
	pl.errSubs[id] = fn
	return id
}

func (pl *Pipeline) OffError(id string) {
	pl.errMu.Lock()
	defer pl.errMu.Unlock()
	delete(pl.errSubs, id)
}

func (pl *Pipeline) emitError(ev mediaplane.ErrorEvent) {
	pl.errMu.RLock()
	subs := make([]func(mediaplane.ErrorEvent), 0, len(pl.errSubs))
	for _, fn := range pl.errSubs {
		subs = append(subs, fn)
	}
	pl.errMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (pl *Pipeline) Release(ctx context.Context) error {
	pl.mu.Lock()
	if pl.released {
		pl.mu.Unlock()
		return nil
	}
	pl.released = true
	elements := make([]mediaplane.Element, 0, len(pl.elements))
	for _, el := range pl.elements {
		elements = append(elements, el)
	}
	pl.elements = make(map[string]mediaplane.Element)
	pl.mu.Unlock()

	for _, el := range elements {
		if err := el.Release(ctx); err != nil {
			log.Warn().Err(err).Str("module", "mediaplane").
				Str("pipeline", pl.id).Str("element", el.ID()).
				Msg("could not release element")
		}
	}
	log.Debug().Str("module", "mediaplane").Str("pipeline", pl.id).Msg("pipeline released")
	return nil
}

func (pl *Pipeline) remove(id string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	delete(pl.elements, id)
}
