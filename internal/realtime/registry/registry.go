// Package registry owns live connection handles: registration, heartbeat
// liveness, best-effort writes, and teardown of a connection's entire state
// tree on disconnect.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"formroom/internal/realtime/metrics"
	"formroom/internal/realtime/models"
	"formroom/internal/realtime/presence"
	"formroom/internal/realtime/ratelimit"
	"formroom/internal/realtime/room"
	"formroom/pkg/platform/sentinel"
)

// Transport is the write side of a client connection. Implementations must be
// safe for concurrent use and must never block indefinitely; a slow client is
// reported as a failed write, not a stalled call.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

// TokenVerifier validates the identity token presented at handshake.
type TokenVerifier interface {
	Verify(token string) (models.Identity, error)
}

// Disconnect reasons passed to hooks.
const (
	ReasonClientClosed     = "client-closed"
	ReasonHeartbeatTimeout = "heartbeat-timeout"
	ReasonRateLimitAbuse   = "rate-limit-abuse"
	ReasonServerShutdown   = "server-shutdown"
	ReasonTransportError   = "transport-error"
)

// Connection is a live, authenticated client connection.
type Connection struct {
	ID        models.ConnectionID
	Identity  models.Identity
	CreatedAt time.Time

	transport Transport
	lastBeat  atomic.Int64
	gone      atomic.Bool
}

// LastHeartbeat returns the time of the most recent heartbeat.
func (c *Connection) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastBeat.Load())
}

// DisconnectHook observes a completed unregister. It receives the rooms the
// connection belonged to so membership departures can be announced. Hooks run
// outside the registry lock.
type DisconnectHook func(conn *Connection, rooms []models.RoomKey, reason string)

// Registry stores live connections and cascades cleanup into the room index,
// presence tracker, and rate limiter on disconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[models.ConnectionID]*Connection

	verifier TokenVerifier
	rooms    *room.Manager
	presence *presence.Tracker
	limiter  *ratelimit.Limiter

	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	hooksMu sync.RWMutex
	hooks   []DisconnectHook
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithHeartbeatTimeout overrides the liveness timeout.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New constructs a connection registry.
func New(verifier TokenVerifier, rooms *room.Manager, pres *presence.Tracker, limiter *ratelimit.Limiter, opts ...Option) *Registry {
	r := &Registry{
		conns:    make(map[models.ConnectionID]*Connection),
		verifier: verifier,
		rooms:    rooms,
		presence: pres,
		limiter:  limiter,
		timeout:  60 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnDisconnect registers a hook fired after every unregister.
func (r *Registry) OnDisconnect(hook DisconnectHook) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Register validates the identity token, stores the connection, and greets the
// client. An invalid or expired token refuses the connection.
func (r *Registry) Register(token string, transport Transport) (*Connection, error) {
	identity, err := r.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	conn := &Connection{
		ID:        models.ConnectionID(uuid.NewString()),
		Identity:  identity,
		CreatedAt: now,
		transport: transport,
	}
	conn.lastBeat.Store(now.UnixNano())

	r.mu.Lock()
	r.conns[conn.ID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ConnectionsActive.Set(float64(total))
	}
	r.logger.Info("connection registered",
		"connection_id", conn.ID,
		"user_id", identity.UserID,
		"role", identity.Role,
	)

	if err := r.Send(conn.ID, models.Outbound{
		Type: models.EventConnectionEstablished,
		Data: models.ConnectionEstablishedData{Identity: identity, ConnectedAt: now},
	}); err != nil {
		return nil, fmt.Errorf("greet connection: %w", err)
	}
	return conn, nil
}

// Heartbeat resets the liveness timer. Unknown connections are a no-op.
func (r *Registry) Heartbeat(id models.ConnectionID) {
	r.mu.RLock()
	conn := r.conns[id]
	r.mu.RUnlock()
	if conn != nil {
		conn.lastBeat.Store(time.Now().UnixNano())
	}
}

// Send writes an event to one connection, best effort. A write against a dead
// transport returns ErrConnectionGone and triggers full cleanup.
func (r *Registry) Send(id models.ConnectionID, event models.Outbound) error {
	r.mu.RLock()
	conn := r.conns[id]
	r.mu.RUnlock()
	if conn == nil {
		return sentinel.ErrNotFound
	}

	if err := conn.transport.WriteJSON(event); err != nil {
		r.Unregister(id, ReasonTransportError)
		return fmt.Errorf("%w: %w", sentinel.ErrConnectionGone, err)
	}
	if r.metrics != nil {
		r.metrics.EventsOutTotal.WithLabelValues(event.Type).Inc()
	}
	return nil
}

// Unregister removes the connection, evicts it from every room and the
// presence tracker, and releases its rate bucket. Safe to call more than once.
func (r *Registry) Unregister(id models.ConnectionID, reason string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)
	total := len(r.conns)
	userStillConnected := false
	for _, other := range r.conns {
		if other.Identity.UserID == conn.Identity.UserID {
			userStillConnected = true
			break
		}
	}
	r.mu.Unlock()

	if !conn.gone.CompareAndSwap(false, true) {
		return
	}
	_ = conn.transport.Close()

	rooms := r.rooms.RemoveConnection(id)
	// The presence entry is per identity; keep it while the user has other
	// live connections.
	if !userStillConnected {
		r.presence.Remove(conn.Identity.UserID)
	}
	r.limiter.Release(id)

	if r.metrics != nil {
		r.metrics.ConnectionsActive.Set(float64(total))
		r.metrics.RoomsActive.Set(float64(r.rooms.RoomCount()))
	}
	r.logger.Info("connection unregistered",
		"connection_id", id,
		"user_id", conn.Identity.UserID,
		"reason", reason,
		"rooms", len(rooms),
	)

	r.hooksMu.RLock()
	hooks := append([]DisconnectHook(nil), r.hooks...)
	r.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(conn, rooms, reason)
	}
}

// Get returns a live connection by id.
func (r *Registry) Get(id models.ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns a copy of all live connections for the admin surface.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// ConnectionsOf returns the live connection ids for one user.
func (r *Registry) ConnectionsOf(userID string) []models.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ConnectionID
	for id, c := range r.conns {
		if c.Identity.UserID == userID {
			out = append(out, id)
		}
	}
	return out
}

// Run reaps connections whose heartbeat lapsed. It blocks until ctx is
// cancelled.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.timeout / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *Registry) reap() {
	cutoff := time.Now().Add(-r.timeout)

	r.mu.RLock()
	var stale []models.ConnectionID
	for id, conn := range r.conns {
		if conn.LastHeartbeat().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		if r.metrics != nil {
			r.metrics.HeartbeatTimeouts.Inc()
		}
		r.logger.Warn("reaping connection after heartbeat timeout", "connection_id", id)
		r.Unregister(id, ReasonHeartbeatTimeout)
	}
}

// CloseAll tears down every connection, typically during shutdown. Clients
// get a final system-message so they can distinguish a restart from a drop.
func (r *Registry) CloseAll(reason string) {
	for _, conn := range r.Snapshot() {
		_ = r.Send(conn.ID, models.Outbound{
			Type: models.EventSystemMessage,
			Data: models.SystemMessageData{
				Type:     reason,
				Message:  "server is shutting down",
				Priority: "warning",
			},
		})
		r.Unregister(conn.ID, reason)
	}
}
