package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/room"
)

func (ctl *Controller) handleJoinRoom(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type joinPayload struct {
		Type         string `json:"type"`
		Room         string `json:"room"`
		Name         string `json:"name"`
		DataChannels bool   `json:"dataChannels"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	roomName := domain.RoomName(p.Room)
	if err := domain.ValidRoomName(roomName); err != nil {
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: err.Error()})
		return
	}
	if err := domain.ValidUserName(p.Name); err != nil {
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: err.Error()})
		return
	}
	if !ctl.Limiter.Allow(req.ParticipantID) {
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "too many join attempts"})
		return
	}

	log.Info().Str("module", "signal").
		Str("pid", string(req.ParticipantID)).
		Str("room", p.Room).Str("name", p.Name).
		Msg("join")
	info := &domain.SessionInfo{Room: roomName}
	ctl.Rooms.JoinRoom(ctx, p.Name, roomName, p.DataChannels, true, info, req)
}

func (ctl *Controller) handleLeaveRoom(ctx context.Context, req domain.ParticipantRequest) {
	log.Info().Str("module", "signal").Str("pid", string(req.ParticipantID)).Msg("leave")
	ctl.Rooms.LeaveRoom(ctx, req)
}

func (ctl *Controller) handleSendMessage(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type messagePayload struct {
		Type    string `json:"type"`
		Room    string `json:"room"`
		User    string `json:"user"`
		Message string `json:"message"`
	}
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	ctl.Rooms.SendMessage(ctx, p.Message, p.User, domain.RoomName(p.Room), req)
}
