package scaling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub replicates envelopes through a shared Redis channel.
type RedisPubSub struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisPubSub wraps an existing Redis client. The channel must be shared by
// every instance of the cluster.
func NewRedisPubSub(client *redis.Client, channel string, logger *slog.Logger) *RedisPubSub {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPubSub{client: client, channel: channel, logger: logger}
}

// Publish sends the envelope to every subscribed instance, including the
// publisher itself; subscribers filter by node id.
func (p *RedisPubSub) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal cluster envelope: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Subscribe consumes envelopes until the returned closer is closed or ctx is
// cancelled. Malformed payloads are logged and skipped.
func (p *RedisPubSub) Subscribe(ctx context.Context, handler Handler) (io.Closer, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	// Force the subscription to establish before returning so publishes
	// from this instance are not lost during startup.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", p.channel, err)
	}

	go func() {
		for msg := range sub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				p.logger.Warn("dropping malformed cluster envelope", "error", err)
				continue
			}
			handler(env)
		}
	}()

	return sub, nil
}
