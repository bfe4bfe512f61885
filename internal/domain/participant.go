package domain

// ParticipantID identifies a connected client across all rooms. It is
// assigned by the transport layer (one id per signaling connection).
type ParticipantID string

// UserParticipant is a read-only snapshot of a room member.
type UserParticipant struct {
	ID        ParticipantID `json:"id"`
	Name      string        `json:"name"`
	Streaming bool          `json:"streaming"`
}

// ParticipantRequest correlates an operation with the client request that
// triggered it, so responses can be routed back to the right message.
type ParticipantRequest struct {
	ParticipantID ParticipantID `json:"participantId"`
	RequestID     string        `json:"requestId"`
}
