package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formroom/internal/realtime/models"
	"formroom/internal/realtime/presence"
	"formroom/internal/realtime/ratelimit"
	"formroom/internal/realtime/registry"
	"formroom/internal/realtime/room"
	"formroom/internal/realtime/router"
	dErrors "formroom/pkg/domain-errors"
)

type staticVerifier struct{}

func (staticVerifier) Verify(token string) (models.Identity, error) {
	parts := strings.SplitN(token, "|", 3)
	if len(parts) != 3 || parts[0] == "" {
		return models.Identity{}, dErrors.New(dErrors.CodeAuthRejected, "invalid token")
	}
	return models.Identity{UserID: parts[0], Role: parts[1], Department: parts[2]}, nil
}

type fixture struct {
	srv      *httptest.Server
	registry *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rooms := room.NewManager()
	pres := presence.NewTracker()
	limiter := ratelimit.NewLimiter(100, time.Minute)
	reg := registry.New(staticVerifier{}, rooms, pres, limiter)
	rt, err := router.New(reg, rooms, pres, limiter)
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(reg, rt))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, registry: reg}
}

func (f *fixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out models.Outbound
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestHandshakeGreetsAuthenticatedClient(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "alice|editor|eng")

	greeting := readEvent(t, conn)
	assert.Equal(t, models.EventConnectionEstablished, greeting.Type)
	assert.Equal(t, 1, f.registry.Count())
}

func TestMissingTokenRejectedBeforeUpgrade(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInvalidTokenClosesConnection(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/?token=garbage"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "upgrade succeeds, then the server refuses")
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	assert.Equal(t, 0, f.registry.Count())
}

func TestEventRoundTrip(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "alice|editor|eng")
	readEvent(t, conn) // connection-established

	payload, err := json.Marshal(models.JoinRoomPayload{RoomID: "form:1"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Inbound{Type: models.EventJoinRoom, Payload: payload}))

	joined := readEvent(t, conn)
	assert.Equal(t, models.EventRoomJoined, joined.Type)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "alice|editor|eng")
	readEvent(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return f.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBearerHeaderAccepted(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	header := http.Header{"Authorization": {"Bearer bob|viewer|fin"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	greeting := readEvent(t, conn)
	assert.Equal(t, models.EventConnectionEstablished, greeting.Type)
}
