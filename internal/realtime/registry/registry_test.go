package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formroom/internal/realtime/models"
	"formroom/internal/realtime/presence"
	"formroom/internal/realtime/ratelimit"
	"formroom/internal/realtime/room"
	dErrors "formroom/pkg/domain-errors"
	"formroom/pkg/platform/sentinel"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (models.Identity, error) {
	if token == "bad" {
		return models.Identity{}, dErrors.New(dErrors.CodeAuthRejected, "invalid token")
	}
	return models.Identity{UserID: token, Role: models.RoleEditor}, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	events []models.Outbound
	failed bool
	closed bool
}

func (t *fakeTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed {
		return errors.New("broken pipe")
	}
	t.events = append(t.events, v.(models.Outbound))
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) eventTypes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.events))
	for _, e := range t.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	registry *Registry
	rooms    *room.Manager
	presence *presence.Tracker
	limiter  *ratelimit.Limiter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		rooms:    room.NewManager(),
		presence: presence.NewTracker(),
		limiter:  ratelimit.NewLimiter(50, time.Minute),
	}
	f.registry = New(fakeVerifier{}, f.rooms, f.presence, f.limiter, opts...)
	return f
}

func TestRegisterGreetsConnection(t *testing.T) {
	f := newFixture(t)
	tr := &fakeTransport{}

	conn, err := f.registry.Register("alice", tr)
	require.NoError(t, err)
	assert.NotEmpty(t, conn.ID)
	assert.Equal(t, "alice", conn.Identity.UserID)
	assert.Equal(t, []string{models.EventConnectionEstablished}, tr.eventTypes())
	assert.Equal(t, 1, f.registry.Count())
}

func TestRegisterRejectsBadToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Register("bad", &fakeTransport{})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeAuthRejected, dErrors.CodeOf(err))
	assert.Equal(t, 0, f.registry.Count())
}

func TestUnregisterTearsDownStateTree(t *testing.T) {
	f := newFixture(t)
	tr := &fakeTransport{}
	conn, err := f.registry.Register("alice", tr)
	require.NoError(t, err)

	f.rooms.Join(conn.ID, "form:1")
	f.rooms.Join(conn.ID, "form:2")
	f.presence.Set("alice", models.StatusOnline, "form:1", "")
	f.limiter.Allow(conn.ID)

	var hookRooms []models.RoomKey
	var hookReason string
	f.registry.OnDisconnect(func(c *Connection, rooms []models.RoomKey, reason string) {
		hookRooms = rooms
		hookReason = reason
	})

	f.registry.Unregister(conn.ID, ReasonClientClosed)

	assert.Empty(t, f.rooms.RoomsOf(conn.ID))
	assert.Empty(t, f.rooms.MembersOf("form:1"))
	assert.Empty(t, f.rooms.MembersOf("form:2"))
	assert.Equal(t, models.StatusOffline, f.presence.Get("alice").Status)
	assert.Equal(t, 0, f.limiter.Tracked())
	assert.True(t, tr.closed)
	assert.ElementsMatch(t, []models.RoomKey{"form:1", "form:2"}, hookRooms)
	assert.Equal(t, ReasonClientClosed, hookReason)
}

func TestUnregisterKeepsPresenceWhileUserHasOtherConnections(t *testing.T) {
	f := newFixture(t)
	c1, err := f.registry.Register("alice", &fakeTransport{})
	require.NoError(t, err)
	_, err = f.registry.Register("alice", &fakeTransport{})
	require.NoError(t, err)

	f.presence.Set("alice", models.StatusOnline, "form:1", "")
	f.registry.Unregister(c1.ID, ReasonClientClosed)

	assert.Equal(t, models.StatusOnline, f.presence.Get("alice").Status)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	f := newFixture(t)
	conn, err := f.registry.Register("alice", &fakeTransport{})
	require.NoError(t, err)

	calls := 0
	f.registry.OnDisconnect(func(*Connection, []models.RoomKey, string) {
		calls++
	})

	f.registry.Unregister(conn.ID, ReasonClientClosed)
	f.registry.Unregister(conn.ID, ReasonClientClosed)
	assert.Equal(t, 1, calls)
}

func TestSendToDeadTransportTriggersCleanup(t *testing.T) {
	f := newFixture(t)
	tr := &fakeTransport{}
	conn, err := f.registry.Register("alice", tr)
	require.NoError(t, err)
	f.rooms.Join(conn.ID, "form:1")

	tr.mu.Lock()
	tr.failed = true
	tr.mu.Unlock()

	err = f.registry.Send(conn.ID, models.Outbound{Type: models.EventSystemMessage})
	require.ErrorIs(t, err, sentinel.ErrConnectionGone)
	assert.Equal(t, 0, f.registry.Count())
	assert.Empty(t, f.rooms.MembersOf("form:1"))
}

func TestSendUnknownConnection(t *testing.T) {
	f := newFixture(t)
	err := f.registry.Send("nope", models.Outbound{Type: models.EventSystemMessage})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestHeartbeatUnknownConnectionIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.registry.Heartbeat("nope")
}

func TestReaperUnregistersStaleConnections(t *testing.T) {
	f := newFixture(t, WithHeartbeatTimeout(40*time.Millisecond))
	tr := &fakeTransport{}
	conn, err := f.registry.Register("alice", tr)
	require.NoError(t, err)
	f.rooms.Join(conn.ID, "form:1")

	var mu sync.Mutex
	var reason string
	f.registry.OnDisconnect(func(_ *Connection, _ []models.RoomKey, r string) {
		mu.Lock()
		defer mu.Unlock()
		reason = r
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.registry.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ReasonHeartbeatTimeout, reason)
	assert.Empty(t, f.rooms.MembersOf("form:1"))
}

func TestHeartbeatKeepsConnectionAlive(t *testing.T) {
	f := newFixture(t, WithHeartbeatTimeout(60*time.Millisecond))
	conn, err := f.registry.Register("alice", &fakeTransport{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.registry.Run(ctx) }()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.registry.Heartbeat(conn.ID)
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, f.registry.Count())
}

func TestCloseAll(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.Register("alice", &fakeTransport{})
	require.NoError(t, err)
	_, err = f.registry.Register("bob", &fakeTransport{})
	require.NoError(t, err)

	f.registry.CloseAll(ReasonServerShutdown)
	assert.Equal(t, 0, f.registry.Count())
}
