// Package admin is the thin HTTP layer over the realtime service: status,
// connection listing, announcements, and direct notification.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"formroom/internal/notification"
	"formroom/internal/realtime"
	"formroom/internal/realtime/models"
	dErrors "formroom/pkg/domain-errors"
	"formroom/pkg/platform/httputil"
)

// Service is the slice of the realtime facade the admin surface wraps.
type Service interface {
	Stats() realtime.Stats
	Connections() []realtime.ConnectionInfo
	BroadcastToRoom(ctx context.Context, roomKey models.RoomKey, message, priority string) error
	BroadcastToDepartment(ctx context.Context, department, message, priority string) error
	NotifyIdentities(ctx context.Context, userIDs []string, msg notification.Message) error
}

// TokenVerifier validates the admin's identity token.
type TokenVerifier interface {
	Verify(token string) (models.Identity, error)
}

// Handler wires admin endpoints to the realtime service.
type Handler struct {
	service  Service
	verifier TokenVerifier
	logger   *slog.Logger
}

// New constructs an admin handler.
func New(service Service, verifier TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{service: service, verifier: verifier, logger: logger}
}

// Register mounts the admin endpoints behind the admin-role guard.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/status", h.HandleStatus)
		r.Get("/connections", h.HandleConnections)
		r.Post("/broadcast", h.HandleBroadcast)
		r.Post("/departments/{department}/broadcast", h.HandleDepartmentBroadcast)
		r.Post("/notify", h.HandleNotify)
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}
		identity, err := h.verifier.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
			return
		}
		if identity.Role != models.RoleAdmin {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleStatus handles GET /admin/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Stats())
}

type connectionsResponse struct {
	Connections []realtime.ConnectionInfo `json:"connections"`
	Total       int                       `json:"total"`
}

// HandleConnections handles GET /admin/connections.
func (h *Handler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	conns := h.service.Connections()
	httputil.WriteJSON(w, http.StatusOK, connectionsResponse{
		Connections: conns,
		Total:       len(conns),
	})
}

type broadcastRequest struct {
	Room     string `json:"room"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// HandleBroadcast handles POST /admin/broadcast.
func (h *Handler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[broadcastRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.Priority == "" {
		req.Priority = "normal"
	}
	if err := h.service.BroadcastToRoom(r.Context(), models.RoomKey(req.Room), req.Message, req.Priority); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "admin broadcast sent", "room", req.Room, "priority", req.Priority)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// HandleDepartmentBroadcast handles POST /admin/departments/{department}/broadcast.
func (h *Handler) HandleDepartmentBroadcast(w http.ResponseWriter, r *http.Request) {
	department := chi.URLParam(r, "department")
	req, ok := httputil.Decode[broadcastRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.Priority == "" {
		req.Priority = "normal"
	}
	if err := h.service.BroadcastToDepartment(r.Context(), department, req.Message, req.Priority); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "department broadcast sent", "department", department)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type notifyRequest struct {
	UserIDs     []string               `json:"userIds"`
	TemplateKey string                 `json:"templateKey"`
	Data        map[string]string      `json:"data"`
	Channels    []notification.Channel `json:"channels"`
	Priority    string                 `json:"priority"`
}

// HandleNotify handles POST /admin/notify.
func (h *Handler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[notifyRequest](w, r, h.logger)
	if !ok {
		return
	}
	if len(req.Channels) == 0 {
		req.Channels = []notification.Channel{notification.ChannelSocket}
	}
	msg := notification.Message{
		TemplateKey: req.TemplateKey,
		Data:        req.Data,
		Channels:    req.Channels,
		Priority:    req.Priority,
	}
	if err := h.service.NotifyIdentities(r.Context(), req.UserIDs, msg); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "admin notification enqueued",
		"recipients", len(req.UserIDs),
		"template", req.TemplateKey,
	)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
