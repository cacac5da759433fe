// Package models defines the shared vocabulary of the realtime layer:
// identities, room keys, presence state, and the wire envelopes exchanged with
// clients.
package models

import (
	"encoding/json"
	"time"
)

// ConnectionID uniquely identifies a live connection.
type ConnectionID string

// RoomKey names a broadcast scope. Keys are structured strings such as
// "form:<id>", "user:<id>", "role:<name>", "department:<name>".
type RoomKey string

// Identity is the authenticated principal behind a connection, supplied by
// the external credential service.
type Identity struct {
	UserID     string `json:"userId"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// Roles recognized by the authorization rules for structural updates.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

// FormRoom returns the room key for collaborators on one form.
func FormRoom(formID string) RoomKey { return RoomKey("form:" + formID) }

// UserRoom returns the personal room reaching every connection of a user.
func UserRoom(userID string) RoomKey { return RoomKey("user:" + userID) }

// RoleRoom returns the room shared by all connections holding a role.
func RoleRoom(role string) RoomKey { return RoomKey("role:" + role) }

// DepartmentRoom returns the room shared by a department's connections.
func DepartmentRoom(name string) RoomKey { return RoomKey("department:" + name) }

// Status is a connection's externally observable presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

// ValidStatus reports whether s is one of the recognized presence statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// PresenceState is the live presence entry for one identity.
type PresenceState struct {
	Status      Status    `json:"status"`
	CurrentRoom RoomKey   `json:"currentRoom,omitempty"`
	TypingField string    `json:"typingField,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Inbound event names (client to server).
const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventUpdateResource = "update-resource"
	EventUpdateField    = "update-field"
	EventSetPresence    = "set-presence"
	EventSetTyping      = "set-typing"
	EventHeartbeat      = "heartbeat"
)

// Outbound event names (server to client).
const (
	EventConnectionEstablished = "connection-established"
	EventResourceUpdated       = "resource-updated"
	EventRoomJoined            = "room-joined"
	EventRoomLeft              = "room-left"
	EventNotification          = "notification"
	EventPresenceUpdated       = "presence-updated"
	EventSystemMessage         = "system-message"
	EventRateLimitExceeded     = "rate-limit-exceeded"
	EventHeartbeatAck          = "heartbeat-ack"
)

// Inbound is the envelope for client events. Payload stays raw until the
// router validates the event shape.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the envelope for server events.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound payload shapes.

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type UpdateResourcePayload struct {
	RoomID     string          `json:"roomId"`
	ChangeType string          `json:"changeType"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type UpdateFieldPayload struct {
	RoomID  string          `json:"roomId"`
	FieldID string          `json:"fieldId"`
	Changes json.RawMessage `json:"changes,omitempty"`
}

type SetPresencePayload struct {
	Status      Status `json:"status"`
	CurrentRoom string `json:"currentRoom,omitempty"`
}

type SetTypingPayload struct {
	RoomID   string `json:"roomId"`
	FieldID  string `json:"fieldId"`
	IsTyping bool   `json:"isTyping"`
}

// Outbound payload shapes.

type ConnectionEstablishedData struct {
	Identity    Identity  `json:"identity"`
	ConnectedAt time.Time `json:"connectedAt"`
}

type ResourceUpdatedData struct {
	Change    json.RawMessage `json:"change,omitempty"`
	FieldID   string          `json:"fieldId,omitempty"`
	Kind      string          `json:"kind"`
	Actor     Identity        `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
}

type RoomMembershipData struct {
	RoomID    string    `json:"roomId"`
	Member    Identity  `json:"member"`
	Timestamp time.Time `json:"timestamp"`
}

type NotificationData struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

type PresenceUpdatedData struct {
	Identity Identity      `json:"identity"`
	State    PresenceState `json:"state"`
}

type SystemMessageData struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

type RateLimitExceededData struct {
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retryAfterMs"`
}

type HeartbeatAckData struct {
	Timestamp time.Time `json:"timestamp"`
}
