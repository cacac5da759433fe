// Package realtime exposes the collaboration core as one service facade, so
// the administrative HTTP layer stays a thin wrapper over function calls.
package realtime

import (
	"context"
	"time"

	"formroom/internal/notification"
	"formroom/internal/realtime/models"
	"formroom/internal/realtime/presence"
	"formroom/internal/realtime/registry"
	"formroom/internal/realtime/room"
	"formroom/internal/realtime/router"
	dErrors "formroom/pkg/domain-errors"
)

// Enqueuer accepts notification messages for multi-channel delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg notification.Message) error
}

// Stats is a point-in-time view of the instance.
type Stats struct {
	Connections   int       `json:"connections"`
	Rooms         int       `json:"rooms"`
	StartedAt     time.Time `json:"startedAt"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
}

// ConnectionInfo describes one live connection for the admin surface.
type ConnectionInfo struct {
	ID            models.ConnectionID  `json:"id"`
	Identity      models.Identity      `json:"identity"`
	ConnectedAt   time.Time            `json:"connectedAt"`
	LastHeartbeat time.Time            `json:"lastHeartbeat"`
	Rooms         []models.RoomKey     `json:"rooms"`
	Presence      models.PresenceState `json:"presence"`
}

// Service bundles the realtime components behind the calls the admin layer
// needs.
type Service struct {
	registry   *registry.Registry
	rooms      *room.Manager
	presence   *presence.Tracker
	router     *router.Router
	dispatcher Enqueuer
	startedAt  time.Time
}

// NewService wires the facade over already-constructed components.
func NewService(reg *registry.Registry, rooms *room.Manager, pres *presence.Tracker, rt *router.Router, dispatcher Enqueuer) *Service {
	return &Service{
		registry:   reg,
		rooms:      rooms,
		presence:   pres,
		router:     rt,
		dispatcher: dispatcher,
		startedAt:  time.Now(),
	}
}

// Stats reports instance-level counters.
func (s *Service) Stats() Stats {
	return Stats{
		Connections:   s.registry.Count(),
		Rooms:         s.rooms.RoomCount(),
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
}

// Connections lists every live connection with its rooms and presence.
func (s *Service) Connections() []ConnectionInfo {
	conns := s.registry.Snapshot()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnectionInfo{
			ID:            c.ID,
			Identity:      c.Identity,
			ConnectedAt:   c.CreatedAt,
			LastHeartbeat: c.LastHeartbeat(),
			Rooms:         s.rooms.RoomsOf(c.ID),
			Presence:      s.presence.Get(c.Identity.UserID),
		})
	}
	return out
}

// BroadcastToRoom pushes a system message to every member of a room,
// cluster-wide.
func (s *Service) BroadcastToRoom(ctx context.Context, roomKey models.RoomKey, message, priority string) error {
	if roomKey == "" || message == "" {
		return dErrors.New(dErrors.CodeBadRequest, "room and message are required")
	}
	return s.router.Broadcast(ctx, roomKey, models.EventSystemMessage, models.SystemMessageData{
		Type:     "announcement",
		Message:  message,
		Priority: priority,
	})
}

// BroadcastToDepartment targets the implicit department room.
func (s *Service) BroadcastToDepartment(ctx context.Context, department, message, priority string) error {
	if department == "" {
		return dErrors.New(dErrors.CodeBadRequest, "department is required")
	}
	return s.BroadcastToRoom(ctx, models.DepartmentRoom(department), message, priority)
}

// NotifyIdentities enqueues a notification message addressed to the given
// users. Delivery guarantees follow the per-channel retry policy.
func (s *Service) NotifyIdentities(ctx context.Context, userIDs []string, msg notification.Message) error {
	if len(userIDs) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one recipient is required")
	}
	recipients := make([]models.Identity, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			return dErrors.New(dErrors.CodeBadRequest, "empty recipient id")
		}
		recipients = append(recipients, models.Identity{UserID: id})
	}
	msg.Recipients = recipients
	return s.dispatcher.Enqueue(ctx, msg)
}
