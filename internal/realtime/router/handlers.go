package router

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"formroom/internal/realtime/models"
	"formroom/internal/realtime/registry"
	dErrors "formroom/pkg/domain-errors"
)

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, dErrors.New(dErrors.CodeMalformedPayload, "missing event payload")
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, dErrors.New(dErrors.CodeMalformedPayload, "invalid event payload")
	}
	return v, nil
}

// authorizeRoomKey restricts the scoped room namespaces: a connection may only
// join its own personal, role, and department rooms. Form rooms are open at
// this layer; form-level ACLs live with the storage collaborator.
func authorizeRoomKey(identity models.Identity, roomKey models.RoomKey) error {
	key := string(roomKey)
	switch {
	case strings.HasPrefix(key, "user:"):
		if identity.Role != models.RoleAdmin && key != string(models.UserRoom(identity.UserID)) {
			return dErrors.New(dErrors.CodeForbidden, "cannot join another user's room")
		}
	case strings.HasPrefix(key, "role:"):
		if identity.Role != models.RoleAdmin && key != string(models.RoleRoom(identity.Role)) {
			return dErrors.New(dErrors.CodeForbidden, "cannot join another role's room")
		}
	case strings.HasPrefix(key, "department:"):
		if identity.Role != models.RoleAdmin && key != string(models.DepartmentRoom(identity.Department)) {
			return dErrors.New(dErrors.CodeForbidden, "cannot join another department's room")
		}
	}
	return nil
}

// authorizeStructuralUpdate gates events that mutate shared resources.
func authorizeStructuralUpdate(identity models.Identity) error {
	switch identity.Role {
	case models.RoleOwner, models.RoleEditor, models.RoleAdmin:
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "role may not emit structural updates")
}

func (r *Router) handleJoinRoom(ctx context.Context, conn *registry.Connection, payload json.RawMessage) error {
	p, err := decode[models.JoinRoomPayload](payload)
	if err != nil {
		return err
	}
	if p.RoomID == "" {
		return dErrors.New(dErrors.CodeMalformedPayload, "roomId is required")
	}
	roomKey := models.RoomKey(p.RoomID)
	if err := authorizeRoomKey(conn.Identity, roomKey); err != nil {
		return err
	}

	_, changed := r.rooms.Join(conn.ID, roomKey)
	if !changed {
		return nil
	}
	if r.metrics != nil {
		r.metrics.RoomsActive.Set(float64(r.rooms.RoomCount()))
	}
	return r.Broadcast(ctx, roomKey, models.EventRoomJoined, models.RoomMembershipData{
		RoomID:    p.RoomID,
		Member:    conn.Identity,
		Timestamp: time.Now(),
	})
}

func (r *Router) handleLeaveRoom(ctx context.Context, conn *registry.Connection, payload json.RawMessage) error {
	p, err := decode[models.LeaveRoomPayload](payload)
	if err != nil {
		return err
	}
	if p.RoomID == "" {
		return dErrors.New(dErrors.CodeMalformedPayload, "roomId is required")
	}
	roomKey := models.RoomKey(p.RoomID)

	if !r.rooms.Leave(conn.ID, roomKey) {
		return nil
	}
	if r.metrics != nil {
		r.metrics.RoomsActive.Set(float64(r.rooms.RoomCount()))
	}
	return r.Broadcast(ctx, roomKey, models.EventRoomLeft, models.RoomMembershipData{
		RoomID:    p.RoomID,
		Member:    conn.Identity,
		Timestamp: time.Now(),
	})
}

func (r *Router) handleUpdateResource(ctx context.Context, conn *registry.Connection, payload json.RawMessage) error {
	p, err := decode[models.UpdateResourcePayload](payload)
	if err != nil {
		return err
	}
	if p.RoomID == "" || p.ChangeType == "" {
		return dErrors.New(dErrors.CodeMalformedPayload, "roomId and changeType are required")
	}
	if err := authorizeStructuralUpdate(conn.Identity); err != nil {
		return err
	}

	return r.Broadcast(ctx, models.RoomKey(p.RoomID), models.EventResourceUpdated, models.ResourceUpdatedData{
		Change:    p.Payload,
		Kind:      p.ChangeType,
		Actor:     conn.Identity,
		Timestamp: time.Now(),
	})
}

func (r *Router) handleUpdateField(ctx context.Context, conn *registry.Connection, payload json.RawMessage) error {
	p, err := decode[models.UpdateFieldPayload](payload)
	if err != nil {
		return err
	}
	if p.RoomID == "" || p.FieldID == "" {
		return dErrors.New(dErrors.CodeMalformedPayload, "roomId and fieldId are required")
	}
	if err := authorizeStructuralUpdate(conn.Identity); err != nil {
		return err
	}

	return r.Broadcast(ctx, models.RoomKey(p.RoomID), models.EventResourceUpdated, models.ResourceUpdatedData{
		Change:    p.Changes,
		FieldID:   p.FieldID,
		Kind:      "field",
		Actor:     conn.Identity,
		Timestamp: time.Now(),
	})
}

func (r *Router) handleSetPresence(ctx context.Context, conn *registry.Connection, payload json.RawMessage) error {
	p, err := decode[models.SetPresencePayload](payload)
	if err != nil {
		return err
	}
	if !models.ValidStatus(p.Status) {
		return dErrors.New(dErrors.CodeMalformedPayload, "unknown presence status")
	}

	userID := conn.Identity.UserID
	currentRoom := models.RoomKey(p.CurrentRoom)
	prior := r.presence.Set(userID, p.Status, currentRoom, "")
	state := r.presence.Get(userID)

	data := models.PresenceUpdatedData{Identity: conn.Identity, State: state}
	if currentRoom != "" {
		if err := r.Broadcast(ctx, currentRoom, models.EventPresenceUpdated, data); err != nil {
			return err
		}
	}
	if prior.CurrentRoom != "" && prior.CurrentRoom != currentRoom {
		return r.Broadcast(ctx, prior.CurrentRoom, models.EventPresenceUpdated, data)
	}
	return nil
}

func (r *Router) handleSetTyping(ctx context.Context, conn *registry.Connection, payload json.RawMessage) error {
	p, err := decode[models.SetTypingPayload](payload)
	if err != nil {
		return err
	}
	if p.RoomID == "" {
		return dErrors.New(dErrors.CodeMalformedPayload, "roomId is required")
	}
	if p.IsTyping && p.FieldID == "" {
		return dErrors.New(dErrors.CodeMalformedPayload, "fieldId is required while typing")
	}

	userID := conn.Identity.UserID
	status := r.presence.Get(userID).Status
	if status == models.StatusOffline {
		status = models.StatusOnline
	}
	field := ""
	if p.IsTyping {
		field = p.FieldID
	}
	r.presence.Set(userID, status, models.RoomKey(p.RoomID), field)

	return r.Broadcast(ctx, models.RoomKey(p.RoomID), models.EventPresenceUpdated, models.PresenceUpdatedData{
		Identity: conn.Identity,
		State:    r.presence.Get(userID),
	})
}

func (r *Router) handleHeartbeat(_ context.Context, conn *registry.Connection, _ json.RawMessage) error {
	r.registry.Heartbeat(conn.ID)
	return r.registry.Send(conn.ID, models.Outbound{
		Type: models.EventHeartbeatAck,
		Data: models.HeartbeatAckData{Timestamp: time.Now()},
	})
}
