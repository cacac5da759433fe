// Package ratelimit enforces the per-connection sliding-window event budget.
package ratelimit

import (
	"sync"
	"time"

	"formroom/internal/realtime/models"
)

// Result reports the outcome of one budget check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	// RetryAfter is how long until the oldest counted event leaves the
	// window; clients use it to back off.
	RetryAfter time.Duration
	// Escalate is set when consecutive violations reached the configured
	// threshold and the connection should be forcibly disconnected.
	Escalate bool
}

// Limiter tracks a sliding event window per connection. The sliding window
// counts individual event timestamps, so rollover is inherently atomic: two
// concurrent events can never double-count against a stale bucket.
type Limiter struct {
	mu      sync.Mutex
	buckets map[models.ConnectionID]*window

	limit     int
	span      time.Duration
	threshold int
	now       func() time.Time
}

type window struct {
	timestamps []time.Time
	violations int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithViolationThreshold sets how many consecutive violations trigger
// escalation. Zero disables escalation.
func WithViolationThreshold(n int) Option {
	return func(l *Limiter) {
		l.threshold = n
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a limiter allowing limit events per span window.
func NewLimiter(limit int, span time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:   make(map[models.ConnectionID]*window),
		limit:     limit,
		span:      span,
		threshold: 3,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow checks and consumes one event from the connection's budget. A denied
// event counts as a violation; an allowed event resets the consecutive
// violation count.
func (l *Limiter) Allow(conn models.ConnectionID) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.buckets[conn]
	if w == nil {
		w = &window{}
		l.buckets[conn] = w
	}
	w.expire(now, l.span)

	if len(w.timestamps) < l.limit {
		w.timestamps = append(w.timestamps, now)
		w.violations = 0
		return Result{
			Allowed:   true,
			Remaining: l.limit - len(w.timestamps),
			Limit:     l.limit,
		}
	}

	w.violations++
	return Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      l.limit,
		RetryAfter: w.timestamps[0].Add(l.span).Sub(now),
		Escalate:   l.threshold > 0 && w.violations >= l.threshold,
	}
}

// Release discards the bucket for a closed connection.
func (l *Limiter) Release(conn models.ConnectionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, conn)
}

// Tracked returns how many connections currently hold a bucket.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// expire drops timestamps older than the window span.
func (w *window) expire(now time.Time, span time.Duration) {
	cutoff := now.Add(-span)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
