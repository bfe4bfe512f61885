package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
	"github.com/dkeye/roomkit/internal/room"
)

// Notifier turns room core callbacks into JSON frames on the bound
// signaling connections. It implements both room.Handler and
// room.NotificationHandler.
type Notifier struct {
	Registry *Registry
}

func NewNotifier(reg *Registry) *Notifier {
	return &Notifier{Registry: reg}
}

func (n *Notifier) SendTo(pid domain.ParticipantID, v any) {
	conn, ok := n.Registry.Get(pid)
	if !ok {
		log.Debug().Str("module", "signal").Str("pid", string(pid)).Msg("no connection to notify")
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("notify marshal")
		return
	}
	if err := conn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("pid", string(pid)).Msg("notify send")
	}
}

func (n *Notifier) SendError(req domain.ParticipantRequest, err *room.Error) {
	n.SendTo(req.ParticipantID, map[string]any{
		"type":      "error",
		"requestId": req.RequestID,
		"code":      err.Code.String(),
		"message":   err.Message,
	})
}

type peerInfo struct {
	Name      string `json:"name"`
	Streaming bool   `json:"streaming,omitempty"`
}

func peerInfos(participants []domain.UserParticipant) []peerInfo {
	out := make([]peerInfo, 0, len(participants))
	for _, p := range participants {
		out = append(out, peerInfo{Name: p.Name, Streaming: p.Streaming})
	}
	return out
}

// --- room.NotificationHandler ---

func (n *Notifier) OnParticipantJoined(req domain.ParticipantRequest, roomName domain.RoomName,
	newUserName string, existing []domain.UserParticipant, err *room.Error) {

	if err != nil {
		n.SendError(req, err)
		return
	}
	n.SendTo(req.ParticipantID, map[string]any{
		"type":      "roomJoined",
		"requestId": req.RequestID,
		"room":      roomName,
		"peers":     peerInfos(existing),
	})
	for _, p := range existing {
		n.SendTo(p.ID, map[string]any{
			"type": "participantJoined",
			"user": newUserName,
		})
	}
}

func (n *Notifier) OnParticipantLeft(req domain.ParticipantRequest, userName string,
	remaining []domain.UserParticipant, err *room.Error) {

	if err != nil {
		n.SendError(req, err)
		return
	}
	n.SendTo(req.ParticipantID, map[string]any{
		"type":      "leftRoom",
		"requestId": req.RequestID,
	})
	n.OnParticipantGone(userName, remaining)
}

func (n *Notifier) OnParticipantGone(userName string, remaining []domain.UserParticipant) {
	for _, p := range remaining {
		n.SendTo(p.ID, map[string]any{
			"type": "participantLeft",
			"name": userName,
		})
	}
}

func (n *Notifier) OnParticipantEvicted(participant domain.UserParticipant) {
	n.SendTo(participant.ID, map[string]any{
		"type": "evicted",
	})
}

func (n *Notifier) OnPublishMedia(req domain.ParticipantRequest, publisherName, sdpAnswer string,
	participants []domain.UserParticipant, err *room.Error) {

	if err != nil {
		n.SendError(req, err)
		return
	}
	n.SendTo(req.ParticipantID, map[string]any{
		"type":      "publishResponse",
		"requestId": req.RequestID,
		"sdpAnswer": sdpAnswer,
	})
	for _, p := range participants {
		if p.ID == req.ParticipantID {
			continue
		}
		n.SendTo(p.ID, map[string]any{
			"type": "participantPublished",
			"user": publisherName,
		})
	}
}

func (n *Notifier) OnUnpublishMedia(req domain.ParticipantRequest, publisherName string,
	participants []domain.UserParticipant, err *room.Error) {

	if err != nil {
		n.SendError(req, err)
		return
	}
	n.SendTo(req.ParticipantID, map[string]any{
		"type":      "unpublishResponse",
		"requestId": req.RequestID,
	})
	for _, p := range participants {
		if p.ID == req.ParticipantID {
			continue
		}
		n.SendTo(p.ID, map[string]any{
			"type": "participantUnpublished",
			"name": publisherName,
		})
	}
}

func (n *Notifier) OnSubscribe(req domain.ParticipantRequest, sdpAnswer string, err *room.Error) {
	if err != nil {
		n.SendError(req, err)
		return
	}
	n.SendTo(req.ParticipantID, map[string]any{
		"type":      "subscribeResponse",
		"requestId": req.RequestID,
		"sdpAnswer": sdpAnswer,
	})
}

func (n *Notifier) OnUnsubscribe(req domain.ParticipantRequest, err *room.Error) {
	if err != nil {
		n.SendError(req, err)
		return
	}
	n.SendTo(req.ParticipantID, map[string]any{
		"type":      "unsubscribeResponse",
		"requestId": req.RequestID,
	})
}

func (n *Notifier) OnRecvIceCandidate(req domain.ParticipantRequest, err *room.Error) {
	if err != nil {
		n.SendError(req, err)
	}
}

func (n *Notifier) OnSendMessage(req domain.ParticipantRequest, message, userName string,
	roomName domain.RoomName, participants []domain.UserParticipant, err *room.Error) {

	if err != nil {
		n.SendError(req, err)
		return
	}
	n.SendTo(req.ParticipantID, map[string]any{
		"type":      "messageSent",
		"requestId": req.RequestID,
	})
	for _, p := range participants {
		n.SendTo(p.ID, map[string]any{
			"type":    "message",
			"room":    roomName,
			"user":    userName,
			"message": message,
		})
	}
}

func (n *Notifier) OnRoomClosed(roomName domain.RoomName, participants []domain.UserParticipant) {
	for _, p := range participants {
		n.SendTo(p.ID, map[string]any{
			"type": "roomClosed",
			"room": roomName,
		})
	}
}

// --- room.Handler ---

func (n *Notifier) OnIceCandidate(roomName domain.RoomName, pid domain.ParticipantID,
	endpointName string, cand mediaplane.ICECandidate) {

	n.SendTo(pid, map[string]any{
		"type":          "iceCandidate",
		"endpointName":  endpointName,
		"candidate":     cand.Candidate,
		"sdpMid":        cand.SDPMid,
		"sdpMLineIndex": cand.SDPMLineIndex,
	})
}

func (n *Notifier) OnPipelineError(roomName domain.RoomName, pids []domain.ParticipantID, description string) {
	for _, pid := range pids {
		n.SendTo(pid, map[string]any{
			"type":  "mediaError",
			"error": description,
		})
	}
}

func (n *Notifier) OnMediaElementError(roomName domain.RoomName, pid domain.ParticipantID, description string) {
	n.SendTo(pid, map[string]any{
		"type":  "mediaError",
		"error": description,
	})
}
