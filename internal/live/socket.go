package live

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/escape-labs/internal/game"
	"github.com/ashureev/escape-labs/internal/identity"
	"github.com/ashureev/escape-labs/internal/session"
	"github.com/containerd/errdefs/pkg/errhttp"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeTimeout bounds a single frame write.
const writeTimeout = 10 * time.Second

// Chatter performs one chat exchange for a session.
type Chatter interface {
	Chat(ctx context.Context, key session.Key, room int, message string) (game.ChatResult, error)
}

// Frame types.
const (
	TypeChat  = "chat"
	TypePing  = "ping"
	TypePong  = "pong"
	TypeReply = "reply"
	TypeError = "error"
)

// ClientFrame is a message from the browser.
type ClientFrame struct {
	Type    string `json:"type"`
	Room    *int   `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
}

// ServerFrame is a message to the browser.
type ServerFrame struct {
	Type   string           `json:"type"`
	Result *game.ChatResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
	Status int              `json:"status,omitempty"`
}

// Handler upgrades requests to chat sockets. Every chat frame runs the same
// exchange as the HTTP chat endpoint.
type Handler struct {
	chat          Chatter
	registry      *Registry
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a chat socket handler.
func NewHandler(chat Chatter, registry *Registry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		chat:          chat,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade. The optional
// room query parameter is the default room for chat frames.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	defaultRoom := -1
	if raw := r.URL.Query().Get("room"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid room", http.StatusBadRequest)
			return
		}
		defaultRoom = n
	}

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
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.registry.Register(userID, sessionID, ws)
	defer h.registry.Unregister(userID, sessionID, ws)

	key := session.Key{UserID: userID, SessionID: sessionID}
	h.readLoop(r.Context(), ws, key, defaultRoom)
	slog.Info("Chat socket ended", "user_id", userID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, key session.Key, defaultRoom int) {
	for {
		var frame ClientFrame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "user_id", key.UserID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", key.UserID)
			}
			return
		}

		var out ServerFrame
		switch frame.Type {
		case TypePing:
			out = ServerFrame{Type: TypePong}
		case TypeChat:
			room := defaultRoom
			if frame.Room != nil {
				room = *frame.Room
			}
			result, err := h.chat.Chat(ctx, key, room, frame.Message)
			if err != nil {
				out = ServerFrame{Type: TypeError, Error: err.Error(), Status: errhttp.ToHTTP(err)}
			} else {
				out = ServerFrame{Type: TypeReply, Result: &result}
			}
		default:
			out = ServerFrame{Type: TypeError, Error: "unknown frame type", Status: http.StatusBadRequest}
		}

		if err := h.write(ctx, ws, out); err != nil {
			slog.Debug("Failed to write frame", "error", err, "user_id", key.UserID)
			return
		}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
