package room

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dkeye/roomkit/internal/domain"
)

type recordingNotificationHandler struct {
	mu sync.Mutex

	joined       []string
	joinErrs     []*Error
	left         []string
	leftErrs     []*Error
	gone         []string
	evicted      []domain.UserParticipant
	published    []string
	pubErrs      []*Error
	unpublished  []string
	unpubErrs    []*Error
	subAnswers   []string
	subErrs      []*Error
	unsubscribed int
	iceErrs      []*Error
	messages     []string
	msgErrs      []*Error
	closedRooms  []domain.RoomName
}

func (h *recordingNotificationHandler) OnParticipantJoined(_ domain.ParticipantRequest, _ domain.RoomName,
	newUserName string, _ []domain.UserParticipant, err *Error) {
	h.mu.Lock()
	h.joined = append(h.joined, newUserName)
	h.joinErrs = append(h.joinErrs, err)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnParticipantLeft(_ domain.ParticipantRequest, userName string,
	_ []domain.UserParticipant, err *Error) {
	h.mu.Lock()
	h.left = append(h.left, userName)
	h.leftErrs = append(h.leftErrs, err)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnParticipantGone(userName string, _ []domain.UserParticipant) {
	h.mu.Lock()
	h.gone = append(h.gone, userName)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnParticipantEvicted(participant domain.UserParticipant) {
	h.mu.Lock()
	h.evicted = append(h.evicted, participant)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnPublishMedia(_ domain.ParticipantRequest, _ string, sdpAnswer string,
	_ []domain.UserParticipant, err *Error) {
	h.mu.Lock()
	h.published = append(h.published, sdpAnswer)
	h.pubErrs = append(h.pubErrs, err)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnUnpublishMedia(_ domain.ParticipantRequest, publisherName string,
	_ []domain.UserParticipant, err *Error) {
	h.mu.Lock()
	h.unpublished = append(h.unpublished, publisherName)
	h.unpubErrs = append(h.unpubErrs, err)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnSubscribe(_ domain.ParticipantRequest, sdpAnswer string, err *Error) {
	h.mu.Lock()
	h.subAnswers = append(h.subAnswers, sdpAnswer)
	h.subErrs = append(h.subErrs, err)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnUnsubscribe(_ domain.ParticipantRequest, _ *Error) {
	h.mu.Lock()
	h.unsubscribed++
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnRecvIceCandidate(_ domain.ParticipantRequest, err *Error) {
	h.mu.Lock()
	h.iceErrs = append(h.iceErrs, err)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnSendMessage(_ domain.ParticipantRequest, message, _ string,
	_ domain.RoomName, _ []domain.UserParticipant, err *Error) {
	h.mu.Lock()
	h.messages = append(h.messages, message)
	h.msgErrs = append(h.msgErrs, err)
	h.mu.Unlock()
}

func (h *recordingNotificationHandler) OnRoomClosed(roomName domain.RoomName, _ []domain.UserParticipant) {
	h.mu.Lock()
	h.closedRooms = append(h.closedRooms, roomName)
	h.mu.Unlock()
}

func newTestNotificationManager() (*NotificationManager, *recordingNotificationHandler) {
	m, _, _ := newTestManager()
	rec := &recordingNotificationHandler{}
	return NewNotificationManager(m, rec), rec
}

func notifJoin(t *testing.T, nm *NotificationManager, roomName domain.RoomName, userName string, pid domain.ParticipantID) {
	t.Helper()
	info := &domain.SessionInfo{Room: roomName}
	nm.JoinRoom(context.Background(), userName, roomName, false, true, info,
		domain.ParticipantRequest{ParticipantID: pid, RequestID: "req-join-" + userName})
}

func TestNotifyJoinAndLeave(t *testing.T) {
	nm, rec := newTestNotificationManager()
	ctx := context.Background()

	notifJoin(t, nm, "r1", "alice", "pid-a")
	rec.mu.Lock()
	if len(rec.joined) != 1 || rec.joined[0] != "alice" || rec.joinErrs[0] != nil {
		rec.mu.Unlock()
		t.Fatalf("join notification mismatch: %v %v", rec.joined, rec.joinErrs)
	}
	rec.mu.Unlock()

	// Duplicate name fails through the handler, not as a return value.
	notifJoin(t, nm, "r1", "alice", "pid-a2")
	rec.mu.Lock()
	if len(rec.joinErrs) != 2 || rec.joinErrs[1] == nil || rec.joinErrs[1].Code != UserAlreadyExists {
		rec.mu.Unlock()
		t.Fatalf("expected UserAlreadyExists notification, got %v", rec.joinErrs)
	}
	rec.mu.Unlock()

	nm.LeaveRoom(ctx, domain.ParticipantRequest{ParticipantID: "pid-a", RequestID: "req-leave"})
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.left) != 1 || rec.left[0] != "alice" || rec.leftErrs[0] != nil {
		t.Fatalf("leave notification mismatch: %v %v", rec.left, rec.leftErrs)
	}
}

func TestNotifyPublishSubscribeRoundtrip(t *testing.T) {
	nm, rec := newTestNotificationManager()
	ctx := context.Background()
	notifJoin(t, nm, "r1", "alice", "pid-a")
	notifJoin(t, nm, "r1", "bob", "pid-b")

	nm.PublishMedia(ctx, true, "offer-a", false,
		domain.ParticipantRequest{ParticipantID: "pid-a", RequestID: "req-pub"})
	rec.mu.Lock()
	if len(rec.published) != 1 || rec.pubErrs[0] != nil || !strings.HasPrefix(rec.published[0], "answer-to-") {
		rec.mu.Unlock()
		t.Fatalf("publish notification mismatch: %v %v", rec.published, rec.pubErrs)
	}
	rec.mu.Unlock()

	nm.Subscribe(ctx, "alice", "offer-b",
		domain.ParticipantRequest{ParticipantID: "pid-b", RequestID: "req-sub"})
	rec.mu.Lock()
	if len(rec.subAnswers) != 1 || rec.subErrs[0] != nil || rec.subAnswers[0] == "" {
		rec.mu.Unlock()
		t.Fatalf("subscribe notification mismatch: %v %v", rec.subAnswers, rec.subErrs)
	}
	rec.mu.Unlock()

	nm.Unsubscribe(ctx, "alice", domain.ParticipantRequest{ParticipantID: "pid-b", RequestID: "req-unsub"})
	nm.UnpublishMedia(ctx, domain.ParticipantRequest{ParticipantID: "pid-a", RequestID: "req-unpub"})
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.unsubscribed != 1 {
		t.Fatalf("expected 1 unsubscribe notification, got %d", rec.unsubscribed)
	}
	if len(rec.unpublished) != 1 || rec.unpubErrs[0] != nil || rec.unpublished[0] != "alice" {
		t.Fatalf("unpublish notification mismatch: %v %v", rec.unpublished, rec.unpubErrs)
	}
}

func TestNotifySendMessageVerifiesSender(t *testing.T) {
	nm, rec := newTestNotificationManager()
	ctx := context.Background()
	notifJoin(t, nm, "r1", "alice", "pid-a")

	req := domain.ParticipantRequest{ParticipantID: "pid-a", RequestID: "req-msg"}
	nm.SendMessage(ctx, "hi there", "alice", "r1", req)
	rec.mu.Lock()
	if len(rec.messages) != 1 || rec.msgErrs[0] != nil || rec.messages[0] != "hi there" {
		rec.mu.Unlock()
		t.Fatalf("message notification mismatch: %v %v", rec.messages, rec.msgErrs)
	}
	rec.mu.Unlock()

	// A spoofed sender name is rejected.
	nm.SendMessage(ctx, "hello", "mallory", "r1", req)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.msgErrs) != 2 || rec.msgErrs[1] == nil {
		t.Fatalf("expected rejection of spoofed sender, got %v", rec.msgErrs)
	}
}

func TestNotifyCloseRoomAndEvict(t *testing.T) {
	nm, rec := newTestNotificationManager()
	ctx := context.Background()
	notifJoin(t, nm, "r1", "alice", "pid-a")
	notifJoin(t, nm, "r2", "bob", "pid-b")

	if err := nm.CloseRoom(ctx, "r1"); err != nil {
		t.Fatalf("close room: %v", err)
	}
	rec.mu.Lock()
	if len(rec.closedRooms) != 1 || rec.closedRooms[0] != "r1" {
		rec.mu.Unlock()
		t.Fatalf("room closed notification mismatch: %v", rec.closedRooms)
	}
	rec.mu.Unlock()

	if err := nm.EvictParticipant(ctx, "pid-b"); err != nil {
		t.Fatalf("evict: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.evicted) != 1 || rec.evicted[0].Name != "bob" {
		t.Fatalf("evicted notification mismatch: %v", rec.evicted)
	}
	if len(rec.gone) != 1 || rec.gone[0] != "bob" {
		t.Fatalf("gone notification mismatch: %v", rec.gone)
	}

	if err := nm.EvictParticipant(ctx, "pid-b"); !IsCode(err, UserNotFound) {
		t.Fatalf("expected UserNotFound evicting twice, got %v", err)
	}
}
