package room

import (
	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

// Handler receives engine-originated events that must reach clients
// out-of-band: trickle ICE candidates and asynchronous media errors.
// Implementations must not block; they are called from media plane
// callbacks and from core operations holding no locks.
type Handler interface {
	OnIceCandidate(roomName domain.RoomName, pid domain.ParticipantID, endpointName string, cand mediaplane.ICECandidate)
	OnPipelineError(roomName domain.RoomName, pids []domain.ParticipantID, description string)
	OnMediaElementError(roomName domain.RoomName, pid domain.ParticipantID, description string)
}
