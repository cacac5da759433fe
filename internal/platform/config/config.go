// Package config builds service configuration from the environment so main
// stays lean. Every recognized option has a development default.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the full configuration surface of the realtime service.
type Config struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	NodeID        string

	Realtime     RealtimeConfig
	RateLimit    RateLimitConfig
	Notification NotificationConfig
	Redis        RedisConfig
	Chat         ChatConfig
	Email        EmailConfig
}

// RealtimeConfig controls connection lifecycle behavior.
type RealtimeConfig struct {
	// HeartbeatTimeout is how long a connection may go without a heartbeat
	// before it is forcibly unregistered.
	HeartbeatTimeout time.Duration
	// TypingTTL is how long a typing indicator survives without renewal.
	TypingTTL time.Duration
	// SendQueueSize bounds the per-connection outbound buffer.
	SendQueueSize int
}

// RateLimitConfig controls the per-connection event throttle.
type RateLimitConfig struct {
	Budget             int
	Window             time.Duration
	ViolationThreshold int
}

// NotificationConfig controls delivery retries and channel fan-out.
type NotificationConfig struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	Workers         int
	QueueSize       int
	SendTimeout     time.Duration
	EnabledChannels []string
	// DeadLetterBrokers and DeadLetterTopic configure the Kafka sink for
	// exhausted deliveries. Empty brokers disable the sink.
	DeadLetterBrokers []string
	DeadLetterTopic   string
}

// RedisConfig configures the cross-instance pub/sub bridge. An empty URL
// degrades the service to single-instance operation.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Channel is the pub/sub channel shared by all instances.
	Channel string
}

// ChatConfig configures the chat-bot send adapter.
type ChatConfig struct {
	BotToken string
	Channel  string
}

// EmailConfig configures the email send adapter.
type EmailConfig struct {
	APIURL   string
	APIToken string
	From     string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          envString("FORMROOM_ADDR", ":8080"),
		JWTSigningKey: envString("FORMROOM_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     os.Getenv("FORMROOM_JWT_ISSUER"),
		JWTAudience:   os.Getenv("FORMROOM_JWT_AUDIENCE"),
		NodeID:        envString("FORMROOM_NODE_ID", hostnameOr("node-local")),
		Realtime: RealtimeConfig{
			HeartbeatTimeout: envDuration("FORMROOM_HEARTBEAT_TIMEOUT", 60*time.Second),
			TypingTTL:        envDuration("FORMROOM_TYPING_TTL", 4*time.Second),
			SendQueueSize:    envInt("FORMROOM_SEND_QUEUE_SIZE", 256),
		},
		RateLimit: RateLimitConfig{
			Budget:             envInt("FORMROOM_RATE_BUDGET", 50),
			Window:             envDuration("FORMROOM_RATE_WINDOW", 60*time.Second),
			ViolationThreshold: envInt("FORMROOM_RATE_VIOLATION_THRESHOLD", 3),
		},
		Notification: NotificationConfig{
			MaxAttempts:       envInt("FORMROOM_NOTIFY_MAX_ATTEMPTS", 5),
			BackoffBase:       envDuration("FORMROOM_NOTIFY_BACKOFF_BASE", 500*time.Millisecond),
			BackoffMax:        envDuration("FORMROOM_NOTIFY_BACKOFF_MAX", 30*time.Second),
			Workers:           envInt("FORMROOM_NOTIFY_WORKERS", 4),
			QueueSize:         envInt("FORMROOM_NOTIFY_QUEUE_SIZE", 1024),
			SendTimeout:       envDuration("FORMROOM_NOTIFY_SEND_TIMEOUT", 10*time.Second),
			EnabledChannels:   envList("FORMROOM_NOTIFY_CHANNELS", []string{"socket", "chat", "email"}),
			DeadLetterBrokers: envList("FORMROOM_DEADLETTER_BROKERS", nil),
			DeadLetterTopic:   envString("FORMROOM_DEADLETTER_TOPIC", "formroom.notifications.deadletter"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("FORMROOM_REDIS_URL"),
			PoolSize:     envInt("FORMROOM_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("FORMROOM_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("FORMROOM_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("FORMROOM_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("FORMROOM_REDIS_WRITE_TIMEOUT", 3*time.Second),
			Channel:      envString("FORMROOM_REDIS_CHANNEL", "formroom.cluster"),
		},
		Chat: ChatConfig{
			BotToken: os.Getenv("FORMROOM_CHAT_BOT_TOKEN"),
			Channel:  os.Getenv("FORMROOM_CHAT_CHANNEL"),
		},
		Email: EmailConfig{
			APIURL:   os.Getenv("FORMROOM_EMAIL_API_URL"),
			APIToken: os.Getenv("FORMROOM_EMAIL_API_TOKEN"),
			From:     envString("FORMROOM_EMAIL_FROM", "noreply@formroom.local"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hostnameOr(fallback string) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return fallback
	}
	return h
}
