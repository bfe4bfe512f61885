package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
	"github.com/dkeye/roomkit/internal/room"
)

func (ctl *Controller) handlePublish(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type publishPayload struct {
		Type       string `json:"type"`
		SdpOffer   string `json:"sdpOffer"`
		DoLoopback bool   `json:"doLoopback"`
	}
	var p publishPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad publish payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	ctl.Rooms.PublishMedia(ctx, true, p.SdpOffer, p.DoLoopback, req)
}

// handleGenerateOffer starts a server-initiated negotiation; the offer
// goes straight back on the caller's connection.
func (ctl *Controller) handleGenerateOffer(ctx context.Context, req domain.ParticipantRequest) {
	offer, err := ctl.Rooms.Manager().GeneratePublishOffer(ctx, req.ParticipantID)
	if err != nil {
		ctl.Notifier.SendError(req, room.AsError(err))
		return
	}
	ctl.Notifier.SendTo(req.ParticipantID, map[string]any{
		"type":      "publishOffer",
		"requestId": req.RequestID,
		"sdpOffer":  offer,
	})
}

func (ctl *Controller) handleUnpublish(ctx context.Context, req domain.ParticipantRequest) {
	ctl.Rooms.UnpublishMedia(ctx, req)
}

func (ctl *Controller) handleSubscribe(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type subscribePayload struct {
		Type     string `json:"type"`
		Sender   string `json:"sender"`
		SdpOffer string `json:"sdpOffer"`
	}
	var p subscribePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad subscribe payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	ctl.Rooms.Subscribe(ctx, p.Sender, p.SdpOffer, req)
}

func (ctl *Controller) handleUnsubscribe(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type unsubscribePayload struct {
		Type   string `json:"type"`
		Sender string `json:"sender"`
	}
	var p unsubscribePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad unsubscribe payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	ctl.Rooms.Unsubscribe(ctx, p.Sender, req)
}

func (ctl *Controller) handleCandidate(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type candidatePayload struct {
		Type          string `json:"type"`
		EndpointName  string `json:"endpointName"`
		Candidate     string `json:"candidate"`
		SDPMid        string `json:"sdpMid"`
		SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	cand := mediaplane.ICECandidate{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	ctl.Rooms.OnIceCandidate(ctx, p.EndpointName, cand, req)
}

func parseMuteType(s string) (domain.MutedMediaType, bool) {
	switch s {
	case "audio":
		return domain.MutedAudio, true
	case "video":
		return domain.MutedVideo, true
	case "all":
		return domain.MutedAll, true
	default:
		return domain.MutedNone, false
	}
}

func (ctl *Controller) handleMutePublished(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type mutePayload struct {
		Type     string `json:"type"`
		MuteType string `json:"muteType"`
	}
	var p mutePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	t, ok := parseMuteType(p.MuteType)
	if !ok {
		ctl.Notifier.SendError(req, &room.Error{Code: room.MediaMuteError, Message: "unknown mute type " + p.MuteType})
		return
	}
	ctl.ack(req, "mutePublishedResponse",
		ctl.Rooms.Manager().MutePublishedMedia(ctx, t, req.ParticipantID))
}

func (ctl *Controller) handleUnmutePublished(ctx context.Context, req domain.ParticipantRequest) {
	ctl.ack(req, "unmutePublishedResponse",
		ctl.Rooms.Manager().UnmutePublishedMedia(ctx, req.ParticipantID))
}

func (ctl *Controller) handleMuteSubscribed(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type mutePayload struct {
		Type     string `json:"type"`
		Sender   string `json:"sender"`
		MuteType string `json:"muteType"`
	}
	var p mutePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	t, ok := parseMuteType(p.MuteType)
	if !ok {
		ctl.Notifier.SendError(req, &room.Error{Code: room.MediaMuteError, Message: "unknown mute type " + p.MuteType})
		return
	}
	ctl.ack(req, "muteSubscribedResponse",
		ctl.Rooms.Manager().MuteSubscribedMedia(ctx, p.Sender, t, req.ParticipantID))
}

func (ctl *Controller) handleUnmuteSubscribed(ctx context.Context, req domain.ParticipantRequest, data []byte) {
	type unmutePayload struct {
		Type   string `json:"type"`
		Sender string `json:"sender"`
	}
	var p unmutePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad unmute payload")
		ctl.Notifier.SendError(req, &room.Error{Code: room.GenericError, Message: "bad payload"})
		return
	}
	ctl.ack(req, "unmuteSubscribedResponse",
		ctl.Rooms.Manager().UnmuteSubscribedMedia(ctx, p.Sender, req.ParticipantID))
}

func (ctl *Controller) ack(req domain.ParticipantRequest, typ string, err error) {
	if err != nil {
		ctl.Notifier.SendError(req, room.AsError(err))
		return
	}
	ctl.Notifier.SendTo(req.ParticipantID, map[string]any{
		"type":      typ,
		"requestId": req.RequestID,
	})
}
