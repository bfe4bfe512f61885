package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

var fakeIDs atomic.Int64

func nextFakeID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, fakeIDs.Add(1))
}

type fakeProvider struct {
	destroy       bool
	failGetClient bool

	mu      sync.Mutex
	clients []*fakeClient
}

func (f *fakeProvider) GetClient(_ context.Context, _ domain.SessionInfo) (mediaplane.Client, error) {
	if f.failGetClient {
		return nil, errors.New("no media plane available")
	}
	c := &fakeClient{}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeProvider) DestroyWhenUnused() bool { return f.destroy }

func (f *fakeProvider) client(i int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

type fakeClient struct {
	mu        sync.Mutex
	closed    bool
	pipelines []*fakePipeline
}

func (c *fakeClient) CreatePipeline(_ context.Context) (mediaplane.Pipeline, error) {
	pl := &fakePipeline{
		id:      nextFakeID("pipeline"),
		errSubs: make(map[string]func(mediaplane.ErrorEvent)),
	}
	c.mu.Lock()
	c.pipelines = append(c.pipelines, pl)
	c.mu.Unlock()
	return pl, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) pipeline(i int) *fakePipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipelines[i]
}

type fakePipeline struct {
	id         string
	failCreate bool

	mu                  sync.Mutex
	failPassThroughOnce bool
	endpoints           []*fakeEndpoint
	passthroughs        []*fakeElement
	released            bool
	errSubs             map[string]func(mediaplane.ErrorEvent)
}

func (pl *fakePipeline) ID() string { return pl.id }

func (pl *fakePipeline) CreateWebRTCEndpoint(_ context.Context, _ mediaplane.EndpointOptions) (mediaplane.WebRTCEndpoint, error) {
	if pl.failCreate {
		return nil, errors.New("media plane refused endpoint")
	}
	ep := newFakeEndpoint()
	pl.mu.Lock()
	pl.endpoints = append(pl.endpoints, ep)
	pl.mu.Unlock()
	return ep, nil
}

func (pl *fakePipeline) CreatePassThrough(_ context.Context) (mediaplane.Element, error) {
	pl.mu.Lock()
	if pl.failPassThroughOnce {
		pl.failPassThroughOnce = false
		pl.mu.Unlock()
		return nil, errors.New("media plane refused passthrough")
	}
	el := newFakeElement("passthru")
	pl.passthroughs = append(pl.passthroughs, el)
	pl.mu.Unlock()
	return el, nil
}

func (pl *fakePipeline) OnError(fn func(mediaplane.ErrorEvent)) string {
	id := nextFakeID("sub")
	pl.mu.Lock()
	pl.errSubs[id] = fn
	pl.mu.Unlock()
	return id
}

func (pl *fakePipeline) OffError(id string) {
	pl.mu.Lock()
	delete(pl.errSubs, id)
	pl.mu.Unlock()
}

func (pl *fakePipeline) emitError(ev mediaplane.ErrorEvent) {
	pl.mu.Lock()
	subs := make([]func(mediaplane.ErrorEvent), 0, len(pl.errSubs))
	for _, fn := range pl.errSubs {
		subs = append(subs, fn)
	}
	pl.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (pl *fakePipeline) endpoint(i int) *fakeEndpoint {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.endpoints[i]
}

func (pl *fakePipeline) endpointCount() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.endpoints)
}

func (pl *fakePipeline) passthrough(i int) *fakeElement {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.passthroughs[i]
}

func (pl *fakePipeline) isReleased() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.released
}

func (pl *fakePipeline) Release(_ context.Context) error {
	pl.mu.Lock()
	pl.released = true
	pl.mu.Unlock()
	return nil
}

type fakeElement struct {
	id string

	mu          sync.Mutex
	connects    map[string]mediaplane.MediaType
	disconnects map[string]mediaplane.MediaType
	released    bool
}

func newFakeElement(prefix string) *fakeElement {
	return &fakeElement{
		id:          nextFakeID(prefix),
		connects:    make(map[string]mediaplane.MediaType),
		disconnects: make(map[string]mediaplane.MediaType),
	}
}

func (e *fakeElement) ID() string { return e.id }

func (e *fakeElement) Connect(_ context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	e.mu.Lock()
	e.connects[sink.ID()] = t
	delete(e.disconnects, sink.ID())
	e.mu.Unlock()
	return nil
}

func (e *fakeElement) Disconnect(_ context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	e.mu.Lock()
	e.disconnects[sink.ID()] = t
	if t == mediaplane.MediaAll {
		delete(e.connects, sink.ID())
	}
	e.mu.Unlock()
	return nil
}

func (e *fakeElement) Release(_ context.Context) error {
	e.mu.Lock()
	e.released = true
	e.mu.Unlock()
	return nil
}

func (e *fakeElement) connectedTo(sinkID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.connects[sinkID]
	return ok
}

func (e *fakeElement) lastDisconnect(sinkID string) (mediaplane.MediaType, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.disconnects[sinkID]
	return t, ok
}

func (e *fakeElement) isReleased() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

type fakeEndpoint struct {
	fakeElement

	emu              sync.Mutex
	onICE            func(mediaplane.ICECandidate)
	errSubs          map[string]func(mediaplane.ErrorEvent)
	candidates       []mediaplane.ICECandidate
	gatherCalls      int
	failProcessOffer bool
}

func newFakeEndpoint() *fakeEndpoint {
	e := &fakeEndpoint{
		errSubs: make(map[string]func(mediaplane.ErrorEvent)),
	}
	e.id = nextFakeID("endpoint")
	e.connects = make(map[string]mediaplane.MediaType)
	e.disconnects = make(map[string]mediaplane.MediaType)
	return e
}

func (e *fakeEndpoint) GenerateOffer(_ context.Context) (string, error) {
	return "offer-from-" + e.id, nil
}

func (e *fakeEndpoint) ProcessOffer(_ context.Context, offer string) (string, error) {
	e.emu.Lock()
	fail := e.failProcessOffer
	e.emu.Unlock()
	if fail {
		return "", errors.New("sdp parse error")
	}
	return "answer-to-" + offer, nil
}

func (e *fakeEndpoint) ProcessAnswer(_ context.Context, _ string) (string, error) {
	return "local-desc-" + e.id, nil
}

func (e *fakeEndpoint) GatherCandidates(_ context.Context) error {
	e.emu.Lock()
	e.gatherCalls++
	e.emu.Unlock()
	return nil
}

func (e *fakeEndpoint) AddICECandidate(_ context.Context, cand mediaplane.ICECandidate) error {
	e.emu.Lock()
	e.candidates = append(e.candidates, cand)
	e.emu.Unlock()
	return nil
}

func (e *fakeEndpoint) OnICECandidate(fn func(mediaplane.ICECandidate)) {
	e.emu.Lock()
	e.onICE = fn
	e.emu.Unlock()
}

func (e *fakeEndpoint) OnError(fn func(mediaplane.ErrorEvent)) string {
	id := nextFakeID("sub")
	e.emu.Lock()
	e.errSubs[id] = fn
	e.emu.Unlock()
	return id
}

func (e *fakeEndpoint) OffError(id string) {
	e.emu.Lock()
	delete(e.errSubs, id)
	e.emu.Unlock()
}

func (e *fakeEndpoint) emitICE(cand mediaplane.ICECandidate) {
	e.emu.Lock()
	fn := e.onICE
	e.emu.Unlock()
	if fn != nil {
		fn(cand)
	}
}

func (e *fakeEndpoint) emitError(ev mediaplane.ErrorEvent) {
	e.emu.Lock()
	subs := make([]func(mediaplane.ErrorEvent), 0, len(e.errSubs))
	for _, fn := range e.errSubs {
		subs = append(subs, fn)
	}
	e.emu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (e *fakeEndpoint) candidateCount() int {
	e.emu.Lock()
	defer e.emu.Unlock()
	return len(e.candidates)
}

func (e *fakeEndpoint) errSubCount() int {
	e.emu.Lock()
	defer e.emu.Unlock()
	return len(e.errSubs)
}

type fakeHandler struct {
	mu             sync.Mutex
	iceEndpoints   []string
	mediaErrors    []string
	pipelineErrors []string
}

func (h *fakeHandler) OnIceCandidate(_ domain.RoomName, _ domain.ParticipantID, endpointName string, _ mediaplane.ICECandidate) {
	h.mu.Lock()
	h.iceEndpoints = append(h.iceEndpoints, endpointName)
	h.mu.Unlock()
}

func (h *fakeHandler) OnPipelineError(_ domain.RoomName, _ []domain.ParticipantID, description string) {
	h.mu.Lock()
	h.pipelineErrors = append(h.pipelineErrors, description)
	h.mu.Unlock()
}

func (h *fakeHandler) OnMediaElementError(_ domain.RoomName, _ domain.ParticipantID, description string) {
	h.mu.Lock()
	h.mediaErrors = append(h.mediaErrors, description)
	h.mu.Unlock()
}

func (h *fakeHandler) iceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.iceEndpoints)
}

func newTestManager() (*Manager, *fakeProvider, *fakeHandler) {
	h := &fakeHandler{}
	p := &fakeProvider{}
	m := NewManager(h, p, Options{EndpointTimeout: 200 * time.Millisecond, CleanupWorkers: 2})
	return m, p, h
}

func mustJoin(t *testing.T, m *Manager, roomName domain.RoomName, userName string, pid domain.ParticipantID) {
	t.Helper()
	info := &domain.SessionInfo{Room: roomName}
	if _, err := m.JoinRoom(context.Background(), userName, roomName, false, true, info, pid); err != nil {
		t.Fatalf("join %s into %s: %v", userName, roomName, err)
	}
}

func mustPublish(t *testing.T, m *Manager, pid domain.ParticipantID) string {
	t.Helper()
	answer, err := m.PublishMedia(context.Background(), pid, true, "offer-"+string(pid), nil, mediaplane.MediaAll, false)
	if err != nil {
		t.Fatalf("publish for %s: %v", pid, err)
	}
	return answer
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
