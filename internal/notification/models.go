// Package notification renders and fans out messages across delivery
// channels with bounded retry and dead-lettering.
package notification

import (
	"time"

	"formroom/internal/realtime/models"
)

// Channel identifies a delivery transport.
type Channel string

const (
	ChannelSocket Channel = "socket"
	ChannelChat   Channel = "chat"
	ChannelEmail  Channel = "email"
)

// ValidChannel reports whether c names a known transport.
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelSocket, ChannelChat, ChannelEmail:
		return true
	}
	return false
}

// AttemptStatus is the lifecycle state of one delivery attempt.
type AttemptStatus string

const (
	StatusPending      AttemptStatus = "pending"
	StatusSuccess      AttemptStatus = "success"
	StatusFailed       AttemptStatus = "failed"
	StatusDeadLettered AttemptStatus = "dead-lettered"
)

// Message is a notification as accepted by the dispatcher. Immutable once
// enqueued.
type Message struct {
	ID          string            `json:"id"`
	TemplateKey string            `json:"templateKey"`
	Data        map[string]string `json:"data,omitempty"`
	Recipients  []models.Identity `json:"recipients"`
	Channels    []Channel         `json:"channels"`
	Priority    string            `json:"priority"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// DeliveryAttempt records one send try for a (message, channel) pair.
// Channels are retried independently of each other.
type DeliveryAttempt struct {
	MessageID   string        `json:"messageId"`
	Channel     Channel       `json:"channel"`
	Attempt     int           `json:"attempt"`
	Status      AttemptStatus `json:"status"`
	NextRetryAt time.Time     `json:"nextRetryAt,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Delivery is the rendered payload handed to a channel adapter.
type Delivery struct {
	MessageID  string
	Title      string
	Body       string
	Priority   string
	Recipients []models.Identity
}
