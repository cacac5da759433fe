// Package deadletter parks delivery attempts that exhausted their retry
// budget so they can be inspected and replayed out of band.
package deadletter

import (
	"context"
	"time"
)

// Entry is one parked delivery.
type Entry struct {
	MessageID string    `json:"messageId"`
	Channel   string    `json:"channel"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FailedAt  time.Time `json:"failedAt"`
}

// Publisher is the observability sink for exhausted deliveries.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
	Close() error
}
