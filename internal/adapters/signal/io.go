package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, pid domain.ParticipantID, c *Conn) {
	defer func() {
		log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("pid", string(pid)).Msg("readPump read error")
				return
			}
			ctl.handleMessage(ctx, pid, data)
		}
	}
}

func (ctl *Controller) handleMessage(ctx context.Context, pid domain.ParticipantID, data []byte) {
	var env struct {
		Type      string `json:"type"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	req := domain.ParticipantRequest{ParticipantID: pid, RequestID: env.RequestID}

	switch env.Type {
	case "joinRoom":
		ctl.handleJoinRoom(ctx, req, data)
	case "leaveRoom":
		ctl.handleLeaveRoom(ctx, req)
	case "publishVideo":
		ctl.handlePublish(ctx, req, data)
	case "generatePublishOffer":
		ctl.handleGenerateOffer(ctx, req)
	case "unpublishVideo":
		ctl.handleUnpublish(ctx, req)
	case "receiveVideoFrom":
		ctl.handleSubscribe(ctx, req, data)
	case "unsubscribeFromVideo":
		ctl.handleUnsubscribe(ctx, req, data)
	case "onIceCandidate":
		ctl.handleCandidate(ctx, req, data)
	case "mutePublished":
		ctl.handleMutePublished(ctx, req, data)
	case "unmutePublished":
		ctl.handleUnmutePublished(ctx, req)
	case "muteSubscribed":
		ctl.handleMuteSubscribed(ctx, req, data)
	case "unmuteSubscribed":
		ctl.handleUnmuteSubscribed(ctx, req, data)
	case "sendMessage":
		ctl.handleSendMessage(ctx, req, data)
	case "ping":
		ctl.handlePing(req)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}
