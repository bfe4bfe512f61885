package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/room"
)

var ErrBackpressure = errors.New("backpressure")

// Conn is one signaling WebSocket with a bounded outgoing queue.
type Conn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

// Registry maps participant ids to their signaling connections. A rebind
// (reconnect) replaces and closes the previous connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ParticipantID]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ParticipantID]*Conn)}
}

func (r *Registry) Bind(pid domain.ParticipantID, conn *Conn) {
	r.mu.Lock()
	old := r.conns[pid]
	r.conns[pid] = conn
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Unbind drops the binding only if it still points at conn, so a stale
// pump cannot kick out a fresh reconnect.
func (r *Registry) Unbind(pid domain.ParticipantID, conn *Conn) {
	r.mu.Lock()
	if r.conns[pid] == conn {
		delete(r.conns, pid)
	}
	r.mu.Unlock()
}

func (r *Registry) Get(pid domain.ParticipantID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[pid]
	return c, ok
}

// Controller dispatches signaling messages into room operations.
type Controller struct {
	Rooms    *room.NotificationManager
	Registry *Registry
	Notifier *Notifier
	Limiter  *JoinRateLimiter
}

func NewController(rooms *room.NotificationManager, reg *Registry, notifier *Notifier, limiter *JoinRateLimiter) *Controller {
	return &Controller{
		Rooms:    rooms,
		Registry: reg,
		Notifier: notifier,
		Limiter:  limiter,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	pid := domain.ParticipantID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &Conn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	ctl.Registry.Bind(pid, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, pid, conn)
		ctl.onDisconnect(ctx, pid, conn)
	}()
}

// onDisconnect evicts the participant from its room, best effort, once the
// socket is gone.
func (ctl *Controller) onDisconnect(ctx context.Context, pid domain.ParticipantID, conn *Conn) {
	ctl.Registry.Unbind(pid, conn)
	if _, err := ctl.Rooms.Manager().GetParticipantName(pid); err != nil {
		return
	}
	if err := ctl.Rooms.EvictParticipant(ctx, pid); err != nil {
		log.Warn().Err(err).Str("module", "signal").
			Str("pid", string(pid)).
			Msg("could not evict participant on disconnect")
	}
}
