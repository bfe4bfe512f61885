package signal

import "github.com/dkeye/roomkit/internal/domain"

func (ctl *Controller) handlePing(req domain.ParticipantRequest) {
	ctl.Notifier.SendTo(req.ParticipantID, map[string]any{
		"type":      "pong",
		"requestId": req.RequestID,
	})
}
