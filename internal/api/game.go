package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/ashureev/escape-labs/internal/agent"
	"github.com/ashureev/escape-labs/internal/game"
	"github.com/ashureev/escape-labs/internal/identity"
	"github.com/ashureev/escape-labs/internal/live"
	"github.com/ashureev/escape-labs/internal/metrics"
	"github.com/ashureev/escape-labs/internal/scenario"
	"github.com/ashureev/escape-labs/internal/session"
	"github.com/ashureev/escape-labs/internal/store"
	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
)

// ErrRateLimited is returned when a user sends chat messages too quickly.
var ErrRateLimited = fmt.Errorf("too many messages, please slow down: %w", errdefs.ErrResourceExhausted)

// GameHandler serves the escape room endpoints.
type GameHandler struct {
	repo       store.Repository
	sessions   *session.Manager
	sockets    *live.Registry
	limiter    *RateLimiter
	transcript agent.ConversationLogger
	scenarios  *scenario.Registry
	provider   string
}

// GameDeps are the collaborators of a GameHandler. Transcript, Scenarios
// and Limiter are optional.
type GameDeps struct {
	Repo       store.Repository
	Sessions   *session.Manager
	Sockets    *live.Registry
	Limiter    *RateLimiter
	Transcript agent.ConversationLogger
	Scenarios  *scenario.Registry
	Provider   string
}

// NewGameHandler creates the game handler.
func NewGameHandler(deps GameDeps) *GameHandler {
	transcript := deps.Transcript
	if transcript == nil {
		transcript = agent.NopConversationLogger()
	}
	sockets := deps.Sockets
	if sockets == nil {
		sockets = live.NewRegistry()
	}
	return &GameHandler{
		repo:       deps.Repo,
		sessions:   deps.Sessions,
		sockets:    sockets,
		limiter:    deps.Limiter,
		transcript: transcript,
		scenarios:  deps.Scenarios,
		provider:   deps.Provider,
	}
}

// RegisterRoutes registers the game routes.
func (h *GameHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/scenarios", h.ListScenarios)
		r.Get("/state", h.GetState)
		r.Post("/advance", h.Advance)
		r.Post("/navigate", h.Navigate)
		r.Post("/submit", h.Submit)
		r.Post("/reset", h.Reset)
		r.Route("/rooms/{room}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Post("/chat", h.PostChat)
			r.Get("/downloads/{file}", h.Download)
		})
	})
}

func (h *GameHandler) engine() *game.Engine {
	return h.sessions.Engine()
}

func sessionKey(r *http.Request) session.Key {
	return session.Key{
		UserID:    identity.UserIDFromContext(r.Context()),
		SessionID: identity.SessionIDFromContext(r.Context()),
	}
}

// GetMe returns the current user's information.
func (h *GameHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    user.UserID,
		"username":   user.Username,
		"session_id": identity.SessionIDFromContext(r.Context()),
		"idle_secs":  int64(user.IdleFor(time.Now()).Seconds()),
	})
}

// GetConfig returns the settings the frontend needs.
func (h *GameHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	e := h.engine()
	JSON(w, http.StatusOK, map[string]interface{}{
		"scenario":          e.Scenario().Name,
		"label":             e.Scenario().Label(),
		"provider":          h.provider,
		"max_message_chars": e.MaxMessageChars(),
	})
}

// ListScenarios returns the scenarios on disk and the one being served.
func (h *GameHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	infos := []scenario.Info{}
	if h.scenarios != nil {
		list, err := h.scenarios.List()
		if err != nil {
			WriteError(w, r, err)
			return
		}
		infos = append(infos, list...)
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"active":    h.engine().Scenario().Name,
		"scenarios": infos,
	})
}

// GetState returns progression, counters and the room list.
func (h *GameHandler) GetState(w http.ResponseWriter, r *http.Request) {
	var state game.StateView
	err := h.sessions.With(r.Context(), sessionKey(r), func(sess *game.Session) error {
		state = h.engine().State(sess)
		return nil
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, state)
}

// RoomResponse is a room view with its narrative rendered to HTML.
type RoomResponse struct {
	game.RoomView
	NarrativeHTML string `json:"narrative_html"`
}

// GetRoom returns one room.
func (h *GameHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := roomParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var view game.RoomView
	err = h.sessions.With(r.Context(), sessionKey(r), func(sess *game.Session) error {
		var err error
		view, err = h.engine().View(sess, room)
		return err
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, RoomResponse{RoomView: view, NarrativeHTML: renderMarkdown(view.Narrative)})
}

type chatRequest struct {
	Message string `json:"message"`
}

// PostChat runs one chat exchange.
func (h *GameHandler) PostChat(w http.ResponseWriter, r *http.Request) {
	room, err := roomParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	result, err := h.Chat(r.Context(), sessionKey(r), room, req.Message)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// Chat runs one rate limited chat exchange for key and records it in the
// transcript. It is shared by the HTTP endpoint and the chat socket.
func (h *GameHandler) Chat(ctx context.Context, key session.Key, room int, message string) (game.ChatResult, error) {
	if h.limiter != nil && !h.limiter.Allow(key.UserID) {
		metrics.RateLimitHits.WithLabelValues("chat").Inc()
		return game.ChatResult{}, ErrRateLimited
	}

	var result game.ChatResult
	err := h.sessions.With(ctx, key, func(sess *game.Session) error {
		var err error
		result, err = h.engine().Chat(ctx, sess, room, message)
		return err
	})
	if err != nil {
		return game.ChatResult{}, err
	}

	h.logExchange(key, room, result)
	return result, nil
}

func (h *GameHandler) logExchange(key session.Key, room int, result game.ChatResult) {
	roomKey := ""
	if rm, ok := h.engine().Scenario().Room(room); ok {
		roomKey = rm.Key
	}
	base := agent.ConversationLogEvent{
		UserID:    key.UserID,
		SessionID: key.SessionID,
		Room:      roomKey,
		Channel:   "chat",
	}

	in := base
	in.Timestamp = result.User.CreatedAt.Format(time.RFC3339Nano)
	in.Direction = "user_to_persona"
	in.EventType = "user_message"
	in.ContentRaw = result.User.Text
	h.transcript.Log(in)

	out := base
	out.Timestamp = result.Assistant.CreatedAt.Format(time.RFC3339Nano)
	out.Direction = "persona_to_user"
	out.EventType = "persona_reply"
	out.ContentRaw = result.Assistant.Source()
	out.Content = result.Assistant.Text
	out.Meta = map[string]any{
		"unlocked":     result.Unlocked,
		"points_added": result.PointsAdded,
		"max_unlocked": result.MaxUnlocked,
	}
	if result.Discovery != nil && len(result.Discovery.Added) > 0 {
		out.Meta["fields_added"] = result.Discovery.Added
	}
	h.transcript.Log(out)
}

// Advance leaves the intro room.
func (h *GameHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var room int
	err := h.sessions.With(r.Context(), sessionKey(r), func(sess *game.Session) error {
		var err error
		room, err = h.engine().Advance(sess)
		return err
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"current": room})
}

type navigateRequest struct {
	Room *int `json:"room"`
}

// Navigate moves to an unlocked room.
func (h *GameHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if req.Room == nil {
		WriteError(w, r, fmt.Errorf("room is required: %w", errdefs.ErrInvalidArgument))
		return
	}
	err := h.sessions.With(r.Context(), sessionKey(r), func(sess *game.Session) error {
		return h.engine().Navigate(sess, *req.Room)
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"current": *req.Room})
}

type submitRequest struct {
	Columns []string `json:"columns"`
}

// Submit checks the final feature selection.
func (h *GameHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	var result game.SubmitResult
	err := h.sessions.With(r.Context(), sessionKey(r), func(sess *game.Session) error {
		var err error
		result, err = h.engine().Submit(sess, req.Columns)
		return err
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// Reset discards the session of the current tab and closes its socket.
func (h *GameHandler) Reset(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	h.sockets.Close(key.UserID, key.SessionID)
	if err := h.sessions.Reset(r.Context(), key); err != nil {
		WriteError(w, r, err)
		return
	}
	slog.Info("Session reset", "user_id", key.UserID, "session_id", key.SessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Download streams a room file once its gate is satisfied.
func (h *GameHandler) Download(w http.ResponseWriter, r *http.Request) {
	room, err := roomParam(r)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	filename := chi.URLParam(r, "file")

	var body []byte
	err = h.sessions.With(r.Context(), sessionKey(r), func(sess *game.Session) error {
		_, f, err := h.engine().OpenDownload(sess, room, filename)
		if err != nil {
			return err
		}
		defer f.Close()
		body, err = io.ReadAll(f)
		return err
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(filename))
	if path.Ext(filename) == ".csv" {
		contentType = "text/csv; charset=utf-8"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Debug("download write failed", "error", err, "file", filename)
	}
}
