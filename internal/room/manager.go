// Package room is the session-orchestration core: a registry of rooms, the
// participant state machine and the publisher/subscriber endpoint wiring on
// top of a media control plane.
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

const (
	DefaultEndpointTimeout = 10 * time.Second
	DefaultCleanupWorkers  = 8
)

// Options tunes the manager.
type Options struct {
	// EndpointTimeout bounds waits on remote endpoint operations and on the
	// publisher readiness gate.
	EndpointTimeout time.Duration
	// CleanupWorkers caps the goroutines releasing media resources.
	CleanupWorkers int
}

func (o Options) withDefaults() Options {
	if o.EndpointTimeout <= 0 {
		o.EndpointTimeout = DefaultEndpointTimeout
	}
	if o.CleanupWorkers <= 0 {
		o.CleanupWorkers = DefaultCleanupWorkers
	}
	return o
}

// Manager is the room registry and the entry point for every session
// operation. Explicitly closed rooms stay in the registry as tombstones so
// a late duplicate close reports RoomClosed instead of RoomNotFound; rooms
// drained by leaveRoom are removed outright.
type Manager struct {
	handler  Handler
	provider mediaplane.Provider
	cleaner  *cleaner
	timeout  time.Duration

	mu    sync.RWMutex
	rooms map[domain.RoomName]*Room

	closed atomic.Bool
}

func NewManager(handler Handler, provider mediaplane.Provider, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		handler:  handler,
		provider: provider,
		cleaner:  newCleaner(opts.CleanupWorkers, opts.EndpointTimeout),
		timeout:  opts.EndpointTimeout,
		rooms:    make(map[domain.RoomName]*Room),
	}
}

// CreateRoom creates a live room for info.Room. A live room with that name
// makes it fail with RoomAlreadyExists; a tombstone is replaced. The loser
// of a concurrent creation race is discarded with a warning, not an error.
func (m *Manager) CreateRoom(ctx context.Context, info domain.SessionInfo) error {
	if m.closed.Load() {
		return newError(GenericError, "room manager is closed")
	}
	m.mu.RLock()
	existing := m.rooms[info.Room]
	m.mu.RUnlock()
	if existing != nil && !existing.IsClosed() {
		return newError(RoomAlreadyExists, "room %s already exists", info.Room)
	}

	client, err := m.provider.GetClient(ctx, info)
	if err != nil {
		return newError(GenericError, "unable to obtain media plane client for room %s: %v", info.Room, err)
	}
	r := newRoom(info.Room, client, m.handler, m.cleaner, m.timeout, m.provider.DestroyWhenUnused())

	m.mu.Lock()
	cur := m.rooms[info.Room]
	if cur != nil && !cur.IsClosed() {
		m.mu.Unlock()
		log.Warn().Str("module", "room").
			Str("room", string(info.Room)).
			Msg("concurrent room creation, discarding duplicate")
		if m.provider.DestroyWhenUnused() {
			_ = client.Close()
		}
		return nil
	}
	m.rooms[info.Room] = r
	m.mu.Unlock()

	log.Info().Str("module", "room").Str("room", string(info.Room)).Msg("room created")
	return nil
}

// JoinRoom adds the participant to the room, auto-creating it when session
// info is provided. Returns the participants present before the join.
func (m *Manager) JoinRoom(ctx context.Context, userName string, roomName domain.RoomName,
	dataChannels, web bool, info *domain.SessionInfo, pid domain.ParticipantID) ([]domain.UserParticipant, error) {

	log.Debug().Str("module", "room").
		Str("room", string(roomName)).Str("user", userName).
		Msg("join request")
	if m.closed.Load() {
		return nil, newError(GenericError, "room manager is closed")
	}

	r, ok := m.getRoom(roomName)
	if (!ok || r.IsClosed()) && info != nil {
		if err := m.CreateRoom(ctx, *info); err != nil && !IsCode(err, RoomAlreadyExists) {
			return nil, err
		}
		r, ok = m.getRoom(roomName)
	}
	if !ok {
		return nil, newError(RoomNotFound, "room %s not found", roomName)
	}
	if r.IsClosed() {
		return nil, newError(RoomClosed, "user %s cannot join room %s: room is closed", userName, roomName)
	}

	existing := snapshot(r.Participants())
	if _, err := r.Join(ctx, pid, userName, dataChannels, web); err != nil {
		return nil, err
	}
	return existing, nil
}

// LeaveRoom removes the participant, auto-closing and dropping the room
// when it drains empty. Returns the remaining participants.
func (m *Manager) LeaveRoom(ctx context.Context, pid domain.ParticipantID) ([]domain.UserParticipant, error) {
	p, r, err := m.getParticipant(pid)
	if err != nil {
		return nil, err
	}
	if r.IsClosed() {
		return nil, newError(RoomClosed, "user %s cannot leave room %s: room is closed", p.Name(), r.Name())
	}
	if err := r.Leave(pid); err != nil {
		return nil, err
	}

	remaining := snapshot(r.Participants())
	if r.ParticipantCount() == 0 {
		log.Info().Str("module", "room").
			Str("room", string(r.Name())).
			Msg("last participant left, closing room")
		r.Close(ctx)
		m.removeRoom(r.Name())
	}
	return remaining, nil
}

// CloseRoom evicts everyone and shuts the room down, returning the
// participants that were present. The closed room stays registered as a
// tombstone.
func (m *Manager) CloseRoom(ctx context.Context, roomName domain.RoomName) ([]domain.UserParticipant, error) {
	r, ok := m.getRoom(roomName)
	if !ok {
		return nil, newError(RoomNotFound, "room %s not found", roomName)
	}
	if r.IsClosed() {
		return nil, newError(RoomClosed, "room %s already closed", roomName)
	}

	participants := snapshot(r.Participants())
	for _, id := range r.ParticipantIDs() {
		if err := r.Leave(id); err != nil {
			log.Warn().Err(err).Str("module", "room").
				Str("room", string(roomName)).
				Msg("could not evict participant while closing room")
		}
	}
	r.Close(ctx)
	return participants, nil
}

// PublishMedia negotiates the participant's outgoing stream, applying the
// given processing elements first, and announces the new publisher to the
// room. isOffer selects how sdp is interpreted.
func (m *Manager) PublishMedia(ctx context.Context, pid domain.ParticipantID, isOffer bool, sdp string,
	loopbackSrc mediaplane.Element, loopbackType mediaplane.MediaType, doLoopback bool,
	elements ...mediaplane.Element) (string, error) {

	sdpType := domain.SdpAnswer
	if isOffer {
		sdpType = domain.SdpOffer
	}
	p, r, err := m.getParticipant(pid)
	if err != nil {
		return "", err
	}
	if err := p.CreatePublishingEndpoint(ctx); err != nil {
		return "", err
	}
	for _, el := range elements {
		if err := p.ShapePublisherMedia(ctx, el, mediaplane.MediaAll); err != nil {
			return "", err
		}
	}
	resp, err := p.PublishToRoom(ctx, sdpType, sdp, doLoopback, loopbackSrc, loopbackType)
	if err != nil {
		return "", err
	}
	if resp == "" {
		return "", newError(MediaSdpError, "error generating sdp response for publisher %s", p.Name())
	}
	r.NewPublisher(p)
	return resp, nil
}

// GeneratePublishOffer starts a server-initiated publish negotiation.
func (m *Manager) GeneratePublishOffer(ctx context.Context, pid domain.ParticipantID) (string, error) {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return "", err
	}
	if err := p.CreatePublishingEndpoint(ctx); err != nil {
		return "", err
	}
	return p.PreparePublishConnection(ctx)
}

// UnpublishMedia stops the participant's outgoing stream and cancels every
// subscription to it.
func (m *Manager) UnpublishMedia(ctx context.Context, pid domain.ParticipantID) error {
	p, r, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	if !p.IsStreaming() {
		return newError(UserNotStreaming, "user %s is not streaming media", p.Name())
	}
	p.UnpublishMedia()
	r.CancelPublisher(p)
	return nil
}

// Subscribe negotiates receiving remoteName's stream for the participant.
func (m *Manager) Subscribe(ctx context.Context, remoteName, sdpOffer string, pid domain.ParticipantID) (string, error) {
	p, r, err := m.getParticipant(pid)
	if err != nil {
		return "", err
	}
	sender := r.ParticipantByName(remoteName)
	if sender == nil {
		return "", newError(UserNotFound, "user %s not found in room %s", remoteName, r.Name())
	}
	if !sender.IsStreaming() {
		return "", newError(UserNotStreaming, "user %s not streaming media in room %s", remoteName, r.Name())
	}
	answer, err := p.ReceiveMediaFrom(ctx, sender, sdpOffer)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", newError(MediaSdpError, "unable to generate sdp answer for user %s receiving from %s", p.Name(), remoteName)
	}
	return answer, nil
}

// Unsubscribe stops receiving remoteName's stream.
func (m *Manager) Unsubscribe(remoteName string, pid domain.ParticipantID) error {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	p.CancelReceivingMedia(remoteName)
	return nil
}

// OnIceCandidate routes a client candidate to the participant's endpoint
// named endpointName.
func (m *Manager) OnIceCandidate(ctx context.Context, endpointName string, cand mediaplane.ICECandidate, pid domain.ParticipantID) error {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	return p.AddIceCandidate(ctx, endpointName, cand)
}

// AddMediaElement shapes the participant's published stream with elem.
func (m *Manager) AddMediaElement(ctx context.Context, pid domain.ParticipantID, elem mediaplane.Element, t mediaplane.MediaType) error {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	if p.IsClosed() {
		return newError(UserClosed, "user %s has been closed", p.Name())
	}
	return p.ShapePublisherMedia(ctx, elem, t)
}

// RemoveMediaElement undoes AddMediaElement.
func (m *Manager) RemoveMediaElement(ctx context.Context, pid domain.ParticipantID, elem mediaplane.Element) error {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	if p.IsClosed() {
		return newError(UserClosed, "user %s has been closed", p.Name())
	}
	return p.UnshapePublisherMedia(ctx, elem)
}

// MutePublishedMedia mutes the given legs of the participant's outgoing
// stream.
func (m *Manager) MutePublishedMedia(ctx context.Context, t domain.MutedMediaType, pid domain.ParticipantID) error {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	if p.IsClosed() {
		return newError(UserClosed, "user %s has been closed", p.Name())
	}
	if !p.IsStreaming() {
		return newError(UserNotStreaming, "user %s is not streaming media", p.Name())
	}
	return p.MutePublishedMedia(ctx, t)
}

// UnmutePublishedMedia restores the participant's outgoing stream.
func (m *Manager) UnmutePublishedMedia(ctx context.Context, pid domain.ParticipantID) error {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	if p.IsClosed() {
		return newError(UserClosed, "user %s has been closed", p.Name())
	}
	if !p.IsStreaming() {
		return newError(UserNotStreaming, "user %s is not streaming media", p.Name())
	}
	return p.UnmutePublishedMedia(ctx)
}

// MuteSubscribedMedia mutes the given legs of the stream the participant
// receives from remoteName.
func (m *Manager) MuteSubscribedMedia(ctx context.Context, remoteName string, t domain.MutedMediaType, pid domain.ParticipantID) error {
	p, r, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	sender := r.ParticipantByName(remoteName)
	if sender == nil {
		return newError(UserNotFound, "user %s not found in room %s", remoteName, r.Name())
	}
	if !sender.IsStreaming() {
		return newError(UserNotStreaming, "user %s not streaming media in room %s", remoteName, r.Name())
	}
	return p.MuteSubscribedMedia(ctx, remoteName, t)
}

// UnmuteSubscribedMedia restores the stream the participant receives from
// remoteName.
func (m *Manager) UnmuteSubscribedMedia(ctx context.Context, remoteName string, pid domain.ParticipantID) error {
	p, r, err := m.getParticipant(pid)
	if err != nil {
		return err
	}
	sender := r.ParticipantByName(remoteName)
	if sender == nil {
		return newError(UserNotFound, "user %s not found in room %s", remoteName, r.Name())
	}
	return p.UnmuteSubscribedMedia(ctx, remoteName)
}

// Close shuts every room down, best effort, then waits for outstanding
// cleanup work. Further operations fail.
func (m *Manager) Close(ctx context.Context) {
	m.closed.Store(true)

	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[domain.RoomName]*Room)
	m.mu.Unlock()

	for name, r := range rooms {
		if r.IsClosed() {
			continue
		}
		for _, id := range r.ParticipantIDs() {
			if err := r.Leave(id); err != nil {
				log.Warn().Err(err).Str("module", "room").
					Str("room", string(name)).
					Msg("could not evict participant during shutdown")
			}
		}
		r.Close(ctx)
	}
	m.cleaner.wait()
	log.Info().Str("module", "room").Msg("room manager closed")
}

func (m *Manager) IsClosed() bool {
	return m.closed.Load()
}

// GetRooms lists the live (not closed) rooms.
func (m *Manager) GetRooms() []domain.RoomName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []domain.RoomName
	for name, r := range m.rooms {
		if !r.IsClosed() {
			names = append(names, name)
		}
	}
	return names
}

// GetParticipants lists the members of a room.
func (m *Manager) GetParticipants(roomName domain.RoomName) ([]domain.UserParticipant, error) {
	r, ok := m.getRoom(roomName)
	if !ok {
		return nil, newError(RoomNotFound, "room %s not found", roomName)
	}
	return snapshot(r.Participants()), nil
}

// GetPublishers lists the members of a room that are streaming.
func (m *Manager) GetPublishers(roomName domain.RoomName) ([]domain.UserParticipant, error) {
	r, ok := m.getRoom(roomName)
	if !ok {
		return nil, newError(RoomNotFound, "room %s not found", roomName)
	}
	var out []domain.UserParticipant
	for _, p := range r.Participants() {
		if !p.IsClosed() && p.IsStreaming() {
			out = append(out, userParticipant(p))
		}
	}
	return out, nil
}

// GetSubscribers lists the members of a room that receive at least one
// stream.
func (m *Manager) GetSubscribers(roomName domain.RoomName) ([]domain.UserParticipant, error) {
	r, ok := m.getRoom(roomName)
	if !ok {
		return nil, newError(RoomNotFound, "room %s not found", roomName)
	}
	var out []domain.UserParticipant
	for _, p := range r.Participants() {
		if !p.IsClosed() && p.IsSubscribed() {
			out = append(out, userParticipant(p))
		}
	}
	return out, nil
}

// GetPeerPublishers lists the participants whose streams pid receives.
func (m *Manager) GetPeerPublishers(pid domain.ParticipantID) ([]domain.UserParticipant, error) {
	p, r, err := m.getParticipant(pid)
	if err != nil {
		return nil, err
	}
	var out []domain.UserParticipant
	for _, name := range p.ConnectedSubscribedEndpoints() {
		if sender := r.ParticipantByName(name); sender != nil {
			out = append(out, userParticipant(sender))
		}
	}
	return out, nil
}

// GetPeerSubscribers lists the participants receiving pid's stream.
func (m *Manager) GetPeerSubscribers(pid domain.ParticipantID) ([]domain.UserParticipant, error) {
	p, r, err := m.getParticipant(pid)
	if err != nil {
		return nil, err
	}
	if !p.IsStreaming() {
		return nil, newError(UserNotStreaming, "user %s is not streaming media", p.Name())
	}
	var out []domain.UserParticipant
	for _, other := range r.Participants() {
		if other.ID() == pid {
			continue
		}
		for _, name := range other.ConnectedSubscribedEndpoints() {
			if name == p.Name() {
				out = append(out, userParticipant(other))
				break
			}
		}
	}
	return out, nil
}

// IsPublisherStreaming reports whether pid is currently streaming.
func (m *Manager) IsPublisherStreaming(pid domain.ParticipantID) (bool, error) {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return false, err
	}
	if p.IsClosed() {
		return false, newError(UserClosed, "user %s has been closed", p.Name())
	}
	return p.IsStreaming(), nil
}

// GetPipeline returns the media pipeline of the room pid belongs to, for
// callers building processing elements to apply to a publisher.
func (m *Manager) GetPipeline(pid domain.ParticipantID) (mediaplane.Pipeline, error) {
	_, r, err := m.getParticipant(pid)
	if err != nil {
		return nil, err
	}
	return r.Pipeline(), nil
}

// GetRoomName returns the room pid belongs to.
func (m *Manager) GetRoomName(pid domain.ParticipantID) (domain.RoomName, error) {
	_, r, err := m.getParticipant(pid)
	if err != nil {
		return "", err
	}
	return r.Name(), nil
}

// GetParticipantName returns pid's user name.
func (m *Manager) GetParticipantName(pid domain.ParticipantID) (string, error) {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return "", err
	}
	return p.Name(), nil
}

// GetParticipantInfo returns pid's snapshot.
func (m *Manager) GetParticipantInfo(pid domain.ParticipantID) (domain.UserParticipant, error) {
	p, _, err := m.getParticipant(pid)
	if err != nil {
		return domain.UserParticipant{}, err
	}
	return userParticipant(p), nil
}

func (m *Manager) getRoom(name domain.RoomName) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[name]
	return r, ok
}

func (m *Manager) removeRoom(name domain.RoomName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, name)
}

func (m *Manager) getParticipant(pid domain.ParticipantID) (*Participant, *Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		if r.IsClosed() {
			continue
		}
		if p := r.Participant(pid); p != nil {
			return p, r, nil
		}
	}
	return nil, nil, newError(UserNotFound, "participant %s not found", pid)
}

func userParticipant(p *Participant) domain.UserParticipant {
	return domain.UserParticipant{ID: p.ID(), Name: p.Name(), Streaming: p.IsStreaming()}
}

func snapshot(parts []*Participant) []domain.UserParticipant {
	out := make([]domain.UserParticipant, 0, len(parts))
	for _, p := range parts {
		if p.IsClosed() {
			continue
		}
		out = append(out, userParticipant(p))
	}
	return out
}
