// Package router validates and dispatches inbound client events, fans
// outbound events to room members, and replicates broadcasts to peer
// instances.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"formroom/internal/realtime/metrics"
	"formroom/internal/realtime/models"
	"formroom/internal/realtime/presence"
	"formroom/internal/realtime/ratelimit"
	"formroom/internal/realtime/registry"
	"formroom/internal/realtime/room"
	"formroom/internal/scaling"
	dErrors "formroom/pkg/domain-errors"
	"formroom/pkg/platform/circuit"
)

type handlerFunc func(ctx context.Context, conn *registry.Connection, payload json.RawMessage) error

// Router is the event pipeline: received, validated, rate-checked,
// authorized, dispatched. Any stage short-circuits to a rejection reported to
// the offending connection.
type Router struct {
	registry *registry.Registry
	rooms    *room.Manager
	presence *presence.Tracker
	limiter  *ratelimit.Limiter

	pubsub    scaling.PubSub
	nodeID    string
	subCloser io.Closer
	breaker   *circuit.Breaker

	handlers map[string]handlerFunc
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Router.
type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithPubSub attaches the cross-instance bridge. Without it the router serves
// a single instance.
func WithPubSub(ps scaling.PubSub, nodeID string) Option {
	return func(r *Router) {
		r.pubsub = ps
		r.nodeID = nodeID
	}
}

// New constructs the router and wires its dispatch table. The table is
// validated once here: every inbound event name must have a handler.
func New(reg *registry.Registry, rooms *room.Manager, pres *presence.Tracker, limiter *ratelimit.Limiter, opts ...Option) (*Router, error) {
	r := &Router{
		registry: reg,
		rooms:    rooms,
		presence: pres,
		limiter:  limiter,
		logger:   slog.Default(),
		breaker:  circuit.New("cluster-publish", circuit.WithFailureThreshold(3)),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.handlers = map[string]handlerFunc{
		models.EventJoinRoom:       r.handleJoinRoom,
		models.EventLeaveRoom:      r.handleLeaveRoom,
		models.EventUpdateResource: r.handleUpdateResource,
		models.EventUpdateField:    r.handleUpdateField,
		models.EventSetPresence:    r.handleSetPresence,
		models.EventSetTyping:      r.handleSetTyping,
		models.EventHeartbeat:      r.handleHeartbeat,
	}
	for _, name := range []string{
		models.EventJoinRoom, models.EventLeaveRoom, models.EventUpdateResource,
		models.EventUpdateField, models.EventSetPresence, models.EventSetTyping,
		models.EventHeartbeat,
	} {
		if r.handlers[name] == nil {
			return nil, fmt.Errorf("no handler registered for event %q", name)
		}
	}

	reg.OnDisconnect(r.announceDeparture)
	pres.OnExpire(r.announceTypingExpired)
	return r, nil
}

// Start subscribes to the cross-instance bridge. A nil bridge degrades to
// single-instance operation.
func (r *Router) Start(ctx context.Context) error {
	if r.pubsub == nil {
		r.logger.Warn("no scaling adapter configured, running single-instance")
		return nil
	}
	closer, err := r.pubsub.Subscribe(ctx, r.applyRemote)
	if err != nil {
		return fmt.Errorf("subscribe scaling adapter: %w", err)
	}
	r.subCloser = closer
	return nil
}

// Close detaches from the cross-instance bridge.
func (r *Router) Close() error {
	if r.subCloser != nil {
		return r.subCloser.Close()
	}
	return nil
}

// Connected places a fresh connection into its implicit rooms (personal,
// role, department) and marks the identity online.
func (r *Router) Connected(ctx context.Context, conn *registry.Connection) {
	identity := conn.Identity
	r.rooms.Join(conn.ID, models.UserRoom(identity.UserID))
	if identity.Role != "" {
		r.rooms.Join(conn.ID, models.RoleRoom(identity.Role))
	}
	if identity.Department != "" {
		r.rooms.Join(conn.ID, models.DepartmentRoom(identity.Department))
	}
	r.presence.Set(identity.UserID, models.StatusOnline, "", "")
	if r.metrics != nil {
		r.metrics.RoomsActive.Set(float64(r.rooms.RoomCount()))
	}
}

// Dispatch runs one inbound event through the pipeline. Events from a single
// connection are processed in receipt order because each connection's read
// loop calls Dispatch serially.
func (r *Router) Dispatch(ctx context.Context, conn *registry.Connection, raw []byte) {
	var in models.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		r.reject(conn, dErrors.CodeMalformedPayload, "invalid event envelope")
		return
	}
	if r.metrics != nil {
		r.metrics.EventsInTotal.WithLabelValues(in.Type).Inc()
	}

	handler, ok := r.handlers[in.Type]
	if !ok {
		r.reject(conn, dErrors.CodeMalformedPayload, fmt.Sprintf("unknown event type %q", in.Type))
		return
	}

	res := r.limiter.Allow(conn.ID)
	if !res.Allowed {
		r.rateLimited(conn, res)
		return
	}

	if err := handler(ctx, conn, in.Payload); err != nil {
		code := dErrors.CodeOf(err)
		switch code {
		case dErrors.CodeMalformedPayload, dErrors.CodeForbidden:
			r.reject(conn, code, err.Error())
		default:
			r.logger.Error("event handler failed",
				"event", in.Type,
				"connection_id", conn.ID,
				"error", err,
			)
		}
	}
}

// Broadcast delivers an event to every member of a room on this instance and
// replicates it to peer instances. Per-recipient failures are logged and do
// not abort delivery to the rest of the set.
func (r *Router) Broadcast(ctx context.Context, roomKey models.RoomKey, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal broadcast data: %w", err)
	}

	r.deliverLocal(roomKey, event, raw)
	r.publish(ctx, roomKey, event, raw)
	return nil
}

// BroadcastToUser delivers an event to every live connection of one user,
// cluster-wide, through the user's personal room.
func (r *Router) BroadcastToUser(ctx context.Context, userID, event string, data any) error {
	return r.Broadcast(ctx, models.UserRoom(userID), event, data)
}

func (r *Router) deliverLocal(roomKey models.RoomKey, event string, raw json.RawMessage) {
	for _, member := range r.rooms.MembersOf(roomKey) {
		if err := r.registry.Send(member, models.Outbound{Type: event, Data: raw}); err != nil {
			r.logger.Warn("broadcast delivery failed for recipient",
				"room", roomKey,
				"connection_id", member,
				"error", err,
			)
		}
	}
}

func (r *Router) publish(ctx context.Context, roomKey models.RoomKey, event string, raw json.RawMessage) {
	if r.pubsub == nil {
		return
	}
	env := scaling.Envelope{NodeID: r.nodeID, Room: roomKey, Event: event, Data: raw}
	if err := r.pubsub.Publish(ctx, env); err != nil {
		if r.metrics != nil {
			r.metrics.ClusterPublishErrors.Inc()
		}
		// The breaker keeps a flapping bridge from flooding the log: one
		// warning when it opens, one notice when it recovers.
		if _, change := r.breaker.RecordFailure(); change.Opened {
			r.logger.Warn("cluster publish failing, delivery degraded to single instance",
				"room", roomKey,
				"event", event,
				"error", err,
			)
		}
		return
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.Info("cluster publish recovered")
	}
}

// applyRemote relays an envelope from a peer instance to local connections.
// Envelopes published by this node were already applied locally.
func (r *Router) applyRemote(env scaling.Envelope) {
	if env.NodeID == r.nodeID {
		return
	}
	r.deliverLocal(env.Room, env.Event, env.Data)
}

func (r *Router) reject(conn *registry.Connection, code dErrors.Code, message string) {
	if r.metrics != nil {
		r.metrics.EventsRejectedTotal.WithLabelValues(string(code)).Inc()
	}
	_ = r.registry.Send(conn.ID, models.Outbound{
		Type: models.EventSystemMessage,
		Data: models.SystemMessageData{
			Type:     string(code),
			Message:  message,
			Priority: "warning",
		},
	})
}

func (r *Router) rateLimited(conn *registry.Connection, res ratelimit.Result) {
	if r.metrics != nil {
		r.metrics.RateLimitViolations.Inc()
		r.metrics.EventsRejectedTotal.WithLabelValues(string(dErrors.CodeRateLimitExceeded)).Inc()
	}
	_ = r.registry.Send(conn.ID, models.Outbound{
		Type: models.EventRateLimitExceeded,
		Data: models.RateLimitExceededData{
			Message:      "event budget exhausted",
			RetryAfterMs: res.RetryAfter.Milliseconds(),
		},
	})

	if res.Escalate {
		if r.metrics != nil {
			r.metrics.ForcedDisconnects.Inc()
		}
		r.logger.Warn("disconnecting connection for repeated rate limit abuse",
			"connection_id", conn.ID,
			"user_id", conn.Identity.UserID,
		)
		_ = r.registry.Send(conn.ID, models.Outbound{
			Type: models.EventSystemMessage,
			Data: models.SystemMessageData{
				Type:     "disconnected",
				Message:  "disconnected for repeated rate limit violations",
				Priority: "critical",
			},
		})
		r.registry.Unregister(conn.ID, registry.ReasonRateLimitAbuse)
	}
}

// announceDeparture broadcasts room-left to every room a closed connection
// belonged to. Registered as a registry disconnect hook.
func (r *Router) announceDeparture(conn *registry.Connection, rooms []models.RoomKey, _ string) {
	ctx := context.Background()
	now := time.Now()
	for _, roomKey := range rooms {
		_ = r.Broadcast(ctx, roomKey, models.EventRoomLeft, models.RoomMembershipData{
			RoomID:    string(roomKey),
			Member:    conn.Identity,
			Timestamp: now,
		})
	}
	if r.metrics != nil {
		r.metrics.RoomsActive.Set(float64(r.rooms.RoomCount()))
	}
}

// announceTypingExpired broadcasts the cleared typing state after the
// server-owned debounce lapses.
func (r *Router) announceTypingExpired(userID string, state models.PresenceState) {
	if state.CurrentRoom == "" {
		return
	}
	_ = r.Broadcast(context.Background(), state.CurrentRoom, models.EventPresenceUpdated, models.PresenceUpdatedData{
		Identity: models.Identity{UserID: userID},
		State:    state,
	})
}
