// Package ws exposes the realtime service over WebSocket: handshake,
// per-connection read loop, and a queued write pump per client.
package ws

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"formroom/internal/realtime/registry"
	"formroom/internal/realtime/router"
	dErrors "formroom/pkg/domain-errors"
	"formroom/pkg/platform/httputil"
)

const maxMessageSize = 64 * 1024

// Handler upgrades HTTP requests into registered realtime connections.
type Handler struct {
	registry  *registry.Registry
	router    *router.Router
	upgrader  websocket.Upgrader
	queueSize int
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithSendQueueSize sets the per-connection outbound buffer.
func WithSendQueueSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHandler builds the WebSocket endpoint.
func NewHandler(reg *registry.Registry, rt *router.Router, opts ...Option) *Handler {
	h := &Handler{
		registry:  reg,
		router:    rt,
		queueSize: 256,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// Origin enforcement happens at the edge proxy.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing identity token"))
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	t := newTransport(sock, h.queueSize)
	go t.writePump()

	conn, err := h.registry.Register(token, t)
	if err != nil {
		h.logger.Info("connection refused", "remote", r.RemoteAddr, "error", err)
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication rejected"),
			deadline())
		_ = t.Close()
		return
	}

	h.router.Connected(r.Context(), conn)
	h.readLoop(r, conn, sock)
}

// readLoop feeds inbound frames to the router one at a time, which is what
// gives a single connection its in-order processing guarantee.
func (h *Handler) readLoop(r *http.Request, conn *registry.Connection, sock *websocket.Conn) {
	sock.SetReadLimit(maxMessageSize)
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			h.registry.Unregister(conn.ID, registry.ReasonClientClosed)
			return
		}
		h.router.Dispatch(r.Context(), conn, data)
		if _, ok := h.registry.Get(conn.ID); !ok {
			// The dispatcher force-closed the connection mid-loop.
			return
		}
	}
}

func deadline() time.Time {
	return time.Now().Add(writeWait)
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
