package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"formroom/internal/notification/deadletter"
	"formroom/internal/notification/metrics"
	"formroom/internal/realtime/models"
	"formroom/pkg/backoff"
	dErrors "formroom/pkg/domain-errors"
	"formroom/pkg/platform/sentinel"
)

// Sender is the contract for an external channel adapter (chat bot, email
// API). A call that exceeds the send timeout is treated as a failure.
type Sender interface {
	Send(ctx context.Context, delivery Delivery) error
}

// RoomBroadcaster delivers socket notifications through a user's personal
// room, cluster-wide. Implemented by the event router.
type RoomBroadcaster interface {
	BroadcastToUser(ctx context.Context, userID, event string, data any) error
}

type task struct {
	msg      Message
	rendered Template
	channel  Channel
}

// Dispatcher expands a message into independent per-channel deliveries.
// Socket delivery is synchronous and fire-and-forget; external channels go
// through a bounded queue, a worker pool, and an exponential-backoff retry
// loop that ends in success or a dead-letter entry. Attempts for one
// (message, channel) pair never overlap: a single worker owns the pair's
// whole retry loop.
type Dispatcher struct {
	broadcaster RoomBroadcaster
	senders     map[Channel]Sender
	renderer    *Renderer
	deadletter  deadletter.Publisher

	queue       chan task
	policy      backoff.Policy
	maxAttempts int
	sendTimeout time.Duration
	workers     int
	enabled     map[Channel]bool

	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	attempts map[string][]DeliveryAttempt
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithBackoff overrides the retry schedule.
func WithBackoff(p backoff.Policy) Option {
	return func(d *Dispatcher) {
		d.policy = p
	}
}

// WithMaxAttempts bounds the retry budget per (message, channel) pair.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		d.maxAttempts = n
	}
}

func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.sendTimeout = timeout
	}
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		d.workers = n
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		d.queue = make(chan task, n)
	}
}

// WithDeadLetter attaches the sink for exhausted deliveries.
func WithDeadLetter(pub deadletter.Publisher) Option {
	return func(d *Dispatcher) {
		d.deadletter = pub
	}
}

// WithEnabledChannels restricts fan-out to the named channels. Requested
// channels outside the set are skipped, not failed.
func WithEnabledChannels(channels []Channel) Option {
	return func(d *Dispatcher) {
		d.enabled = make(map[Channel]bool, len(channels))
		for _, c := range channels {
			d.enabled[c] = true
		}
	}
}

// New builds a dispatcher. senders maps each external channel to its
// adapter; the socket channel needs no adapter because it routes through the
// broadcaster.
func New(broadcaster RoomBroadcaster, senders map[Channel]Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		broadcaster: broadcaster,
		senders:     senders,
		renderer:    NewRenderer(),
		policy:      backoff.Default(),
		maxAttempts: 5,
		sendTimeout: 10 * time.Second,
		workers:     4,
		logger:      slog.Default(),
		attempts:    make(map[string][]DeliveryAttempt),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = make(chan task, 1024)
	}
	if d.enabled == nil {
		d.enabled = map[Channel]bool{ChannelSocket: true, ChannelChat: true, ChannelEmail: true}
	}
	return d
}

// Run serves the delivery queue until ctx is cancelled. Deliveries already
// picked up finish their current attempt; pending retries are abandoned with
// their recorded failure state intact.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range d.workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case t := <-d.queue:
					if d.metrics != nil {
						d.metrics.QueueDepth.Set(float64(len(d.queue)))
					}
					d.deliver(ctx, t)
				}
			}
		})
	}
	return g.Wait()
}

// Enqueue accepts a message, renders its template once, and expands the
// requested channels into independent deliveries. The socket channel is
// delivered before Enqueue returns; external channels are queued. Returns
// ErrQueueFull when the delivery queue cannot absorb the message.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) error {
	if len(msg.Channels) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "message requests no channels")
	}
	for _, c := range msg.Channels {
		if !ValidChannel(c) {
			return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown channel %q", c))
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	rendered, err := d.renderer.Render(msg.TemplateKey, msg.Data)
	if err != nil {
		return err
	}

	for _, channel := range msg.Channels {
		if !d.enabled[channel] {
			d.logger.Debug("skipping disabled channel", "message_id", msg.ID, "channel", channel)
			continue
		}
		if channel == ChannelSocket {
			d.deliverSocket(ctx, msg, rendered)
			continue
		}
		if _, ok := d.senders[channel]; !ok {
			d.logger.Warn("no adapter configured for channel", "message_id", msg.ID, "channel", channel)
			continue
		}
		select {
		case d.queue <- task{msg: msg, rendered: rendered, channel: channel}:
			if d.metrics != nil {
				d.metrics.QueueDepth.Set(float64(len(d.queue)))
			}
		default:
			return fmt.Errorf("enqueue notification %s for %s: %w", msg.ID, channel, sentinel.ErrQueueFull)
		}
	}
	return nil
}

// Attempts returns the recorded delivery attempts for a message, in the
// order they happened.
func (d *Dispatcher) Attempts(messageID string) []DeliveryAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeliveryAttempt, len(d.attempts[messageID]))
	copy(out, d.attempts[messageID])
	return out
}

// deliverSocket pushes the notification into each recipient's personal room.
// A recipient with no live connection simply receives nothing; the message
// is not redelivered on reconnect.
func (d *Dispatcher) deliverSocket(ctx context.Context, msg Message, rendered Template) {
	data := models.NotificationData{
		ID:       msg.ID,
		Title:    rendered.Title,
		Body:     rendered.Body,
		Priority: msg.Priority,
	}
	for _, recipient := range msg.Recipients {
		if err := d.broadcaster.BroadcastToUser(ctx, recipient.UserID, models.EventNotification, data); err != nil {
			d.logger.Warn("socket notification broadcast failed",
				"message_id", msg.ID,
				"user_id", recipient.UserID,
				"error", err,
			)
		}
	}
	d.record(DeliveryAttempt{
		MessageID: msg.ID,
		Channel:   ChannelSocket,
		Attempt:   1,
		Status:    StatusSuccess,
	})
	if d.metrics != nil {
		d.metrics.AttemptsTotal.WithLabelValues(string(ChannelSocket), string(StatusSuccess)).Inc()
	}
}

// deliver runs the full retry loop for one external-channel delivery.
func (d *Dispatcher) deliver(ctx context.Context, t task) {
	sender := d.senders[t.channel]
	delivery := Delivery{
		MessageID:  t.msg.ID,
		Title:      t.rendered.Title,
		Body:       t.rendered.Body,
		Priority:   t.msg.Priority,
		Recipients: t.msg.Recipients,
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		start := time.Now()
		lastErr = sender.Send(sendCtx, delivery)
		cancel()
		if d.metrics != nil {
			d.metrics.SendDurationMs.WithLabelValues(string(t.channel)).
				Observe(float64(time.Since(start).Milliseconds()))
		}

		if lastErr == nil {
			d.record(DeliveryAttempt{
				MessageID: t.msg.ID,
				Channel:   t.channel,
				Attempt:   attempt,
				Status:    StatusSuccess,
			})
			if d.metrics != nil {
				d.metrics.AttemptsTotal.WithLabelValues(string(t.channel), string(StatusSuccess)).Inc()
			}
			return
		}

		if attempt == d.maxAttempts {
			break
		}

		delay := d.policy.Delay(attempt)
		d.record(DeliveryAttempt{
			MessageID:   t.msg.ID,
			Channel:     t.channel,
			Attempt:     attempt,
			Status:      StatusFailed,
			NextRetryAt: time.Now().Add(delay),
			Error:       lastErr.Error(),
		})
		if d.metrics != nil {
			d.metrics.AttemptsTotal.WithLabelValues(string(t.channel), string(StatusFailed)).Inc()
		}
		d.logger.Warn("delivery attempt failed, retry scheduled",
			"message_id", t.msg.ID,
			"channel", t.channel,
			"attempt", attempt,
			"retry_in", delay,
			"error", lastErr,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	d.deadLetter(ctx, t, lastErr)
}

func (d *Dispatcher) deadLetter(ctx context.Context, t task, lastErr error) {
	d.record(DeliveryAttempt{
		MessageID: t.msg.ID,
		Channel:   t.channel,
		Attempt:   d.maxAttempts,
		Status:    StatusDeadLettered,
		Error:     lastErr.Error(),
	})
	if d.metrics != nil {
		d.metrics.AttemptsTotal.WithLabelValues(string(t.channel), string(StatusDeadLettered)).Inc()
		d.metrics.DeadLetteredTotal.WithLabelValues(string(t.channel)).Inc()
	}
	d.logger.Error("delivery exhausted retry budget",
		"message_id", t.msg.ID,
		"channel", t.channel,
		"attempts", d.maxAttempts,
		"error", lastErr,
	)
	if d.deadletter == nil {
		return
	}
	entry := deadletter.Entry{
		MessageID: t.msg.ID,
		Channel:   string(t.channel),
		Attempts:  d.maxAttempts,
		LastError: lastErr.Error(),
		Title:     t.rendered.Title,
		Body:      t.rendered.Body,
		FailedAt:  time.Now(),
	}
	if err := d.deadletter.Publish(ctx, entry); err != nil {
		d.logger.Error("dead-letter publish failed",
			"message_id", t.msg.ID,
			"channel", t.channel,
			"error", err,
		)
	}
}

func (d *Dispatcher) record(attempt DeliveryAttempt) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[attempt.MessageID] = append(d.attempts[attempt.MessageID], attempt)
}
