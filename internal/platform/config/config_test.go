package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 60*time.Second, cfg.Realtime.HeartbeatTimeout)
	assert.Equal(t, 50, cfg.RateLimit.Budget)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.RateLimit.ViolationThreshold)
	assert.Equal(t, 5, cfg.Notification.MaxAttempts)
	assert.Equal(t, []string{"socket", "chat", "email"}, cfg.Notification.EnabledChannels)
	assert.Equal(t, "formroom.cluster", cfg.Redis.Channel)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("FORMROOM_ADDR", ":9999")
	t.Setenv("FORMROOM_RATE_BUDGET", "10")
	t.Setenv("FORMROOM_RATE_WINDOW", "10s")
	t.Setenv("FORMROOM_NOTIFY_CHANNELS", "socket, chat")
	t.Setenv("FORMROOM_DEADLETTER_BROKERS", "k1:9092,k2:9092")

	cfg := FromEnv()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 10, cfg.RateLimit.Budget)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []string{"socket", "chat"}, cfg.Notification.EnabledChannels)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notification.DeadLetterBrokers)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FORMROOM_RATE_BUDGET", "not-a-number")
	t.Setenv("FORMROOM_RATE_WINDOW", "soon")

	cfg := FromEnv()

	assert.Equal(t, 50, cfg.RateLimit.Budget)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
}
