package chat

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/geek-intake/internal/channel"
	"github.com/ashureev/geek-intake/internal/identity"
)

// WebSocketHandler upgrades chat requests and runs one session per connection.
type WebSocketHandler struct {
	orch           *Orchestrator
	registry       *channel.Registry
	idle           time.Duration
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(orch *Orchestrator, registry *channel.Registry, idle time.Duration, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		orch:           orch,
		registry:       registry,
		idle:           idle,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	conversationID := identity.ConversationIDFromContext(r.Context())
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	slog.Info("WebSocket connection request", "user_id", userID, "conversation_id", conversationID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}

	ch := channel.NewWebSocket(ws, h.idle)
	defer func() {
		if closeErr := ch.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.registry.Register(userID, conversationID, ch)
	defer h.registry.Unregister(userID, conversationID, ch)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Chat session panicked",
				"user_id", userID,
				"conversation_id", conversationID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			_ = ch.Close(websocket.StatusInternalError, "internal error")
		}
	}()

	if err := h.orch.Run(r.Context(), ch, userID, conversationID); err != nil {
		slog.Error("Chat session ended with error", "error", err, "user_id", userID, "conversation_id", conversationID)
		return
	}
	slog.Info("Chat session ended", "user_id", userID, "conversation_id", conversationID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}
