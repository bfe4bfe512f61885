// Package mediaplane defines the control-plane surface the room core drives
// media through. The core only sees these interfaces; the concrete plane
// (in-process pion, or a remote media server client) lives behind them.
package mediaplane

import (
	"context"

	"github.com/dkeye/roomkit/internal/domain"
)

// Element is a node in a media pipeline that can be wired to other nodes.
type Element interface {
	ID() string
	// Connect wires this element's output of the given media type into sink.
	Connect(ctx context.Context, sink Element, t MediaType) error
	// Disconnect removes the wiring of the given media type towards sink.
	Disconnect(ctx context.Context, sink Element, t MediaType) error
	Release(ctx context.Context) error
}

// WebRTCEndpoint is an Element terminating a WebRTC peer connection.
type WebRTCEndpoint interface {
	Element

	GenerateOffer(ctx context.Context) (string, error)
	ProcessOffer(ctx context.Context, offer string) (string, error)
	ProcessAnswer(ctx context.Context, answer string) (string, error)
	// GatherCandidates starts trickle ICE gathering; discovered candidates
	// are delivered through the OnICECandidate callback.
	GatherCandidates(ctx context.Context) error
	AddICECandidate(ctx context.Context, cand ICECandidate) error

	OnICECandidate(fn func(ICECandidate))
	// OnError subscribes to asynchronous endpoint errors and returns a
	// subscription id for OffError.
	OnError(fn func(ErrorEvent)) string
	OffError(id string)
}

// Pipeline is a factory and container for media elements of one room.
type Pipeline interface {
	ID() string
	CreateWebRTCEndpoint(ctx context.Context, opts EndpointOptions) (WebRTCEndpoint, error)
	CreatePassThrough(ctx context.Context) (Element, error)
	OnError(fn func(ErrorEvent)) string
	OffError(id string)
	Release(ctx context.Context) error
}

// Client is one media plane instance; a room creates its pipeline on it.
type Client interface {
	CreatePipeline(ctx context.Context) (Pipeline, error)
	Close() error
}

// Provider hands out media plane clients. Implementations may share one
// client across rooms or dedicate one per room.
type Provider interface {
	GetClient(ctx context.Context, info domain.SessionInfo) (Client, error)
	// DestroyWhenUnused reports whether the client obtained for a room must
	// be closed once that room is gone.
	DestroyWhenUnused() bool
}
