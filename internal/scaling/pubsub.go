// Package scaling bridges room broadcasts across service instances through a
// shared pub/sub medium, so a broadcast on one instance reaches connections
// owned by every other instance.
package scaling

import (
	"context"
	"encoding/json"
	"io"

	"formroom/internal/realtime/models"
)

// Envelope is the wire format replicated between instances. Data stays raw so
// relaying instances never re-render payloads.
type Envelope struct {
	NodeID string          `json:"nodeId"`
	Room   models.RoomKey  `json:"room"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Handler consumes envelopes published by peer instances. Implementations are
// responsible for skipping their own node id.
type Handler func(env Envelope)

// PubSub is the narrow cross-instance bridge. The in-memory implementation
// backs tests; the redis implementation backs production.
type PubSub interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, handler Handler) (io.Closer, error)
}
