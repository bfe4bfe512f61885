package room

import (
	"context"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

// NotificationHandler turns operation outcomes into client traffic:
// request-correlated responses for the caller and broadcasts for the rest
// of the room. A non-nil *Error means the operation failed and only the
// caller should hear about it.
type NotificationHandler interface {
	OnParticipantJoined(req domain.ParticipantRequest, roomName domain.RoomName, newUserName string,
		existing []domain.UserParticipant, err *Error)
	OnParticipantLeft(req domain.ParticipantRequest, userName string,
		remaining []domain.UserParticipant, err *Error)
	// OnParticipantGone is the broadcast-only variant used when the
	// participant did not ask to leave (eviction, connection loss).
	OnParticipantGone(userName string, remaining []domain.UserParticipant)
	OnParticipantEvicted(participant domain.UserParticipant)

	OnPublishMedia(req domain.ParticipantRequest, publisherName, sdpAnswer string,
		participants []domain.UserParticipant, err *Error)
	OnUnpublishMedia(req domain.ParticipantRequest, publisherName string,
		participants []domain.UserParticipant, err *Error)
	OnSubscribe(req domain.ParticipantRequest, sdpAnswer string, err *Error)
	OnUnsubscribe(req domain.ParticipantRequest, err *Error)
	OnRecvIceCandidate(req domain.ParticipantRequest, err *Error)

	OnSendMessage(req domain.ParticipantRequest, message, userName string, roomName domain.RoomName,
		participants []domain.UserParticipant, err *Error)
	OnRoomClosed(roomName domain.RoomName, participants []domain.UserParticipant)
}

// NotificationManager drives Manager operations on behalf of correlated
// client requests and reports every outcome through a NotificationHandler.
type NotificationManager struct {
	inner   *Manager
	handler NotificationHandler
}

func NewNotificationManager(inner *Manager, handler NotificationHandler) *NotificationManager {
	return &NotificationManager{inner: inner, handler: handler}
}

// Manager exposes the wrapped manager for queries and admin calls that
// need no notifications.
func (nm *NotificationManager) Manager() *Manager {
	return nm.inner
}

func (nm *NotificationManager) JoinRoom(ctx context.Context, userName string, roomName domain.RoomName,
	dataChannels, web bool, info *domain.SessionInfo, req domain.ParticipantRequest) {

	existing, err := nm.inner.JoinRoom(ctx, userName, roomName, dataChannels, web, info, req.ParticipantID)
	nm.handler.OnParticipantJoined(req, roomName, userName, existing, AsError(err))
}

func (nm *NotificationManager) LeaveRoom(ctx context.Context, req domain.ParticipantRequest) {
	userName, err := nm.inner.GetParticipantName(req.ParticipantID)
	if err != nil {
		nm.handler.OnParticipantLeft(req, "", nil, AsError(err))
		return
	}
	remaining, err := nm.inner.LeaveRoom(ctx, req.ParticipantID)
	nm.handler.OnParticipantLeft(req, userName, remaining, AsError(err))
}

func (nm *NotificationManager) PublishMedia(ctx context.Context, isOffer bool, sdp string,
	doLoopback bool, req domain.ParticipantRequest) {

	userName, roomName, lerr := nm.callerContext(req.ParticipantID)
	if lerr != nil {
		nm.handler.OnPublishMedia(req, userName, "", nil, lerr)
		return
	}
	answer, err := nm.inner.PublishMedia(ctx, req.ParticipantID, isOffer, sdp, nil, mediaplane.MediaAll, doLoopback)
	if err != nil {
		nm.handler.OnPublishMedia(req, userName, "", nil, AsError(err))
		return
	}
	participants, _ := nm.inner.GetParticipants(roomName)
	nm.handler.OnPublishMedia(req, userName, answer, participants, nil)
}

func (nm *NotificationManager) UnpublishMedia(ctx context.Context, req domain.ParticipantRequest) {
	userName, roomName, lerr := nm.callerContext(req.ParticipantID)
	if lerr != nil {
		nm.handler.OnUnpublishMedia(req, userName, nil, lerr)
		return
	}
	if err := nm.inner.UnpublishMedia(ctx, req.ParticipantID); err != nil {
		nm.handler.OnUnpublishMedia(req, userName, nil, AsError(err))
		return
	}
	participants, _ := nm.inner.GetParticipants(roomName)
	nm.handler.OnUnpublishMedia(req, userName, participants, nil)
}

func (nm *NotificationManager) Subscribe(ctx context.Context, remoteName, sdpOffer string, req domain.ParticipantRequest) {
	answer, err := nm.inner.Subscribe(ctx, remoteName, sdpOffer, req.ParticipantID)
	nm.handler.OnSubscribe(req, answer, AsError(err))
}

func (nm *NotificationManager) Unsubscribe(ctx context.Context, remoteName string, req domain.ParticipantRequest) {
	err := nm.inner.Unsubscribe(remoteName, req.ParticipantID)
	nm.handler.OnUnsubscribe(req, AsError(err))
}

func (nm *NotificationManager) OnIceCandidate(ctx context.Context, endpointName string,
	cand mediaplane.ICECandidate, req domain.ParticipantRequest) {

	err := nm.inner.OnIceCandidate(ctx, endpointName, cand, req.ParticipantID)
	nm.handler.OnRecvIceCandidate(req, AsError(err))
}

// SendMessage relays a chat message to the whole room after verifying the
// sender actually belongs to the room it names.
func (nm *NotificationManager) SendMessage(ctx context.Context, message, userName string,
	roomName domain.RoomName, req domain.ParticipantRequest) {

	realName, realRoom, lerr := nm.callerContext(req.ParticipantID)
	if lerr != nil {
		nm.handler.OnSendMessage(req, message, userName, roomName, nil, lerr)
		return
	}
	if realName != userName || realRoom != roomName {
		nm.handler.OnSendMessage(req, message, userName, roomName, nil,
			newError(GenericError, "user %s does not match sender of message in room %s", userName, roomName))
		return
	}
	participants, err := nm.inner.GetParticipants(roomName)
	if err != nil {
		nm.handler.OnSendMessage(req, message, userName, roomName, nil, AsError(err))
		return
	}
	nm.handler.OnSendMessage(req, message, userName, roomName, participants, nil)
}

// CloseRoom is the administrative shutdown of a room; everyone present is
// notified.
func (nm *NotificationManager) CloseRoom(ctx context.Context, roomName domain.RoomName) error {
	participants, err := nm.inner.CloseRoom(ctx, roomName)
	if err != nil {
		return err
	}
	nm.handler.OnRoomClosed(roomName, participants)
	return nil
}

// EvictParticipant force-removes a participant, telling them and the rest
// of the room.
func (nm *NotificationManager) EvictParticipant(ctx context.Context, pid domain.ParticipantID) error {
	info, err := nm.inner.GetParticipantInfo(pid)
	if err != nil {
		return err
	}
	remaining, err := nm.inner.LeaveRoom(ctx, pid)
	if err != nil {
		return err
	}
	nm.handler.OnParticipantEvicted(info)
	nm.handler.OnParticipantGone(info.Name, remaining)
	return nil
}

func (nm *NotificationManager) callerContext(pid domain.ParticipantID) (string, domain.RoomName, *Error) {
	userName, err := nm.inner.GetParticipantName(pid)
	if err != nil {
		return "", "", AsError(err)
	}
	roomName, err := nm.inner.GetRoomName(pid)
	if err != nil {
		return userName, "", AsError(err)
	}
	return userName, roomName, nil
}
