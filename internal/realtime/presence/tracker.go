// Package presence tracks the externally observable live state of each
// identity: status, current room, and typing indicator.
package presence

import (
	"sync"
	"time"

	"formroom/internal/realtime/models"
)

// ExpireFunc is invoked when a typing indicator lapses without renewal so the
// caller can broadcast the cleared state. It runs outside the tracker lock.
type ExpireFunc func(userID string, state models.PresenceState)

// Tracker maps identity to presence state. Typing indicators are ephemeral:
// the tracker owns an expiry timer per identity so a client that disconnects
// uncleanly can never leave a stuck "still typing" flag.
type Tracker struct {
	mu        sync.Mutex
	states    map[string]models.PresenceState
	timers    map[string]*time.Timer
	typingTTL time.Duration
	onExpire  ExpireFunc
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTypingTTL overrides the typing indicator lifetime.
func WithTypingTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.typingTTL = ttl
		}
	}
}

// NewTracker creates an empty presence tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		states:    make(map[string]models.PresenceState),
		timers:    make(map[string]*time.Timer),
		typingTTL: 4 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnExpire registers the callback fired when a typing indicator lapses. Set
// once during wiring, before any typing events arrive.
func (t *Tracker) OnExpire(fn ExpireFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Set overwrites the presence entry for userID and returns the prior state
// for diffing. A non-empty typingField arms the expiry timer; an empty one
// disarms it.
func (t *Tracker) Set(userID string, status models.Status, currentRoom models.RoomKey, typingField string) models.PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	prior := t.getLocked(userID)
	t.states[userID] = models.PresenceState{
		Status:      status,
		CurrentRoom: currentRoom,
		TypingField: typingField,
		LastUpdated: time.Now(),
	}

	if typingField != "" {
		t.armTimerLocked(userID)
	} else {
		t.disarmTimerLocked(userID)
	}
	return prior
}

// Get returns the presence entry for userID, or offline defaults if unseen.
func (t *Tracker) Get(userID string) models.PresenceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(userID)
}

// Remove deletes the presence entry and any pending typing timer.
func (t *Tracker) Remove(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmTimerLocked(userID)
	delete(t.states, userID)
}

func (t *Tracker) getLocked(userID string) models.PresenceState {
	if state, ok := t.states[userID]; ok {
		return state
	}
	return models.PresenceState{Status: models.StatusOffline}
}

func (t *Tracker) armTimerLocked(userID string) {
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	}
	t.timers[userID] = time.AfterFunc(t.typingTTL, func() {
		t.expireTyping(userID)
	})
}

func (t *Tracker) disarmTimerLocked(userID string) {
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
}

func (t *Tracker) expireTyping(userID string) {
	t.mu.Lock()
	state, ok := t.states[userID]
	if !ok || state.TypingField == "" {
		t.mu.Unlock()
		return
	}
	state.TypingField = ""
	state.LastUpdated = time.Now()
	t.states[userID] = state
	delete(t.timers, userID)
	fn := t.onExpire
	t.mu.Unlock()

	if fn != nil {
		fn(userID, state)
	}
}
