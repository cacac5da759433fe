package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formroom/internal/realtime/models"
)

func TestGetUnseenReturnsOfflineDefaults(t *testing.T) {
	tr := NewTracker()
	state := tr.Get("ghost")
	assert.Equal(t, models.StatusOffline, state.Status)
	assert.Empty(t, state.CurrentRoom)
	assert.Empty(t, state.TypingField)
}

func TestSetReturnsPriorState(t *testing.T) {
	tr := NewTracker()

	prior := tr.Set("alice", models.StatusOnline, "form:42", "")
	assert.Equal(t, models.StatusOffline, prior.Status)

	prior = tr.Set("alice", models.StatusAway, "form:42", "")
	assert.Equal(t, models.StatusOnline, prior.Status)
	assert.Equal(t, models.RoomKey("form:42"), prior.CurrentRoom)
}

func TestStateSurvivesUntilNextSet(t *testing.T) {
	tr := NewTracker()
	tr.Set("alice", models.StatusOnline, "form:42", "")

	got := tr.Get("alice")
	assert.Equal(t, models.StatusOnline, got.Status)
	assert.Equal(t, models.RoomKey("form:42"), got.CurrentRoom)

	// No implicit expiry for non-typing state.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, got.Status, tr.Get("alice").Status)
}

func TestTypingExpires(t *testing.T) {
	var mu sync.Mutex
	var expiredUser string
	var expiredState models.PresenceState

	tr := NewTracker(WithTypingTTL(30 * time.Millisecond))
	tr.OnExpire(func(userID string, state models.PresenceState) {
		mu.Lock()
		defer mu.Unlock()
		expiredUser = userID
		expiredState = state
	})

	tr.Set("alice", models.StatusOnline, "form:1", "field-9")
	assert.Equal(t, "field-9", tr.Get("alice").TypingField)

	require.Eventually(t, func() bool {
		return tr.Get("alice").TypingField == ""
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "alice", expiredUser)
	assert.Empty(t, expiredState.TypingField)
	assert.Equal(t, models.RoomKey("form:1"), expiredState.CurrentRoom)
}

func TestTypingRenewalPushesExpiry(t *testing.T) {
	tr := NewTracker(WithTypingTTL(50 * time.Millisecond))

	tr.Set("alice", models.StatusOnline, "form:1", "f1")
	time.Sleep(30 * time.Millisecond)
	tr.Set("alice", models.StatusOnline, "form:1", "f1")
	time.Sleep(30 * time.Millisecond)

	// Renewed at t=30ms, so the indicator is still live at t=60ms.
	assert.Equal(t, "f1", tr.Get("alice").TypingField)
}

func TestClearTypingDisarmsTimer(t *testing.T) {
	var mu sync.Mutex
	fired := false
	tr := NewTracker(WithTypingTTL(20 * time.Millisecond))
	tr.OnExpire(func(string, models.PresenceState) {
		mu.Lock()
		defer mu.Unlock()
		fired = true
	})

	tr.Set("alice", models.StatusOnline, "form:1", "f1")
	tr.Set("alice", models.StatusOnline, "form:1", "")

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, fired)
}

func TestRemoveDropsEntry(t *testing.T) {
	tr := NewTracker()
	tr.Set("alice", models.StatusOnline, "form:1", "f1")
	tr.Remove("alice")

	assert.Equal(t, models.StatusOffline, tr.Get("alice").Status)
}
