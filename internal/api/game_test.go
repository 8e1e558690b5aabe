package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/escape-labs/internal/agent"
	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/game"
	"github.com/ashureev/escape-labs/internal/identity"
	"github.com/ashureev/escape-labs/internal/scenario/scenariotest"
	"github.com/ashureev/escape-labs/internal/session"
	"github.com/ashureev/escape-labs/internal/store"
	"github.com/go-chi/chi/v5"
)

type queuedPersona struct {
	mu      sync.Mutex
	replies []string
}

func (p *queuedPersona) Send(_ context.Context, _, _ string, _ []domain.Turn) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.replies) == 0 {
		return `{"message":"..."}`
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r
}

type recordingTranscript struct {
	mu     sync.Mutex
	events []agent.ConversationLogEvent
}

func (r *recordingTranscript) Log(e agent.ConversationLogEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingTranscript) Close() error { return nil }

type testServer struct {
	handler    http.Handler
	persona    *queuedPersona
	transcript *recordingTranscript
	repo       store.Repository
}

func newTestServer(t *testing.T, limit int) *testServer {
	t.Helper()
	repo, err := store.NewSQLite(store.MemoryPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	persona := &queuedPersona{}
	engine := game.NewEngine(scenariotest.Load(t), persona)
	limiter := NewRateLimiter(limit, time.Minute)
	t.Cleanup(limiter.Close)
	transcript := &recordingTranscript{}

	h := NewGameHandler(GameDeps{
		Repo:       repo,
		Sessions:   session.NewManager(repo, engine, nil),
		Limiter:    limiter,
		Transcript: transcript,
		Provider:   "static",
	})

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	h.RegisterRoutes(r)
	NewHealthHandler(repo, nil).RegisterHealth(r)
	return &testServer{handler: r, persona: persona, transcript: transcript, repo: repo}
}

// client keeps the anon cookie between requests like a browser tab.
type client struct {
	t      *testing.T
	srv    *testServer
	cookie *http.Cookie
	tab    string
}

func (s *testServer) client(t *testing.T, tab string) *client {
	return &client{t: t, srv: s, tab: tab}
}

func (c *client) do(method, target string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set(identity.SessionHeaderName, c.tab)
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.srv.handler.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == identity.AnonCookieName {
			c.cookie = ck
		}
	}
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestFullEscape(t *testing.T) {
	srv := newTestServer(t, 100)
	c := srv.client(t, "tab-1")

	state := decode[game.StateView](t, c.do(http.MethodGet, "/api/state", nil))
	if state.MaxUnlocked != 0 || len(state.Rooms) != 6 {
		t.Fatalf("Unexpected initial state %+v", state)
	}

	if w := c.do(http.MethodGet, "/api/rooms/1", nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected locked room to return 403, got %d", w.Code)
	}

	if w := c.do(http.MethodPost, "/api/advance", nil); w.Code != http.StatusOK {
		t.Fatalf("advance: %d %s", w.Code, w.Body.String())
	}

	srv.persona.replies = []string{
		`{"message":"Welcome aboard!","unlocked":true}`,
		`{"status":"confirmed","confirmed_fields":["sqft","bedrooms","price"],"message":"All three."}`,
		`{"message":"Ready.","unlocked":true}`,
		`{"message":"Good","points_awarded":12}`,
	}

	steps := []struct {
		room    int
		message string
		max     int
	}{
		{1, "Let's go", 2},
		{2, "sqft, bedrooms, price", 3},
		{3, "prices are skewed", 4},
		{4, "log price", 5},
	}
	for _, step := range steps {
		w := c.do(http.MethodPost, "/api/rooms/"+strconv.Itoa(step.room)+"/chat", map[string]string{"message": step.message})
		if w.Code != http.StatusOK {
			t.Fatalf("chat room %d: %d %s", step.room, w.Code, w.Body.String())
		}
		res := decode[game.ChatResult](t, w)
		if res.MaxUnlocked != step.max {
			t.Errorf("room %d: expected max unlocked %d, got %d", step.room, step.max, res.MaxUnlocked)
		}
	}

	view := decode[RoomResponse](t, c.do(http.MethodGet, "/api/rooms/1", nil))
	if view.ChatEnabled || len(view.Turns) != 2 || view.Turns[1].Text != "Welcome aboard!" {
		t.Errorf("Unexpected briefing view %+v", view)
	}
	if !strings.Contains(view.NarrativeHTML, "<h1>Briefing</h1>") {
		t.Errorf("Expected rendered narrative, got %q", view.NarrativeHTML)
	}

	w := c.do(http.MethodPost, "/api/rooms/1/chat", map[string]string{"message": "again"})
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("Expected 412 for disabled chat, got %d", w.Code)
	}

	sub := decode[RoomResponse](t, c.do(http.MethodGet, "/api/rooms/5", nil))
	if len(sub.Options) != 5 {
		t.Errorf("Expected 5 submission options, got %v", sub.Options)
	}

	res := decode[game.SubmitResult](t, c.do(http.MethodPost, "/api/submit", map[string][]string{"columns": sub.Options}))
	if res.Escaped || res.Message != game.MessageRedundant {
		t.Errorf("Expected rejection with all columns, got %+v", res)
	}

	res = decode[game.SubmitResult](t, c.do(http.MethodPost, "/api/submit", map[string][]string{"columns": {"price", "sqft", "bedrooms"}}))
	if !res.Escaped {
		t.Errorf("Expected escape, got %+v", res)
	}

	if n := len(srv.transcript.events); n != 2*len(steps) {
		t.Errorf("Expected %d transcript events, got %d", 2*len(steps), n)
	}
}

func TestTabsAreSeparateGames(t *testing.T) {
	srv := newTestServer(t, 100)
	a := srv.client(t, "tab-a")
	if w := a.do(http.MethodPost, "/api/advance", nil); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	b := &client{t: t, srv: srv, cookie: a.cookie, tab: "tab-b"}
	state := decode[game.StateView](t, b.do(http.MethodGet, "/api/state", nil))
	if state.MaxUnlocked != 0 {
		t.Errorf("Expected fresh game in second tab, got max %d", state.MaxUnlocked)
	}
}

func TestChatErrors(t *testing.T) {
	srv := newTestServer(t, 2)
	c := srv.client(t, "tab-1")
	c.do(http.MethodPost, "/api/advance", nil)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"bad room", "/api/rooms/abc/chat", map[string]string{"message": "hi"}, http.StatusBadRequest},
		{"too long", "/api/rooms/1/chat", map[string]string{"message": strings.Repeat("a", 1001)}, http.StatusBadRequest},
		{"no persona", "/api/rooms/0/chat", map[string]string{"message": "hi"}, http.StatusPreconditionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := c.do(http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	// The limit is per user and counts every attempt that reached the engine.
	w := c.do(http.MethodPost, "/api/rooms/1/chat", map[string]string{"message": "hi"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the limit is spent, got %d", w.Code)
	}
}

func TestNavigateAndDownloads(t *testing.T) {
	srv := newTestServer(t, 100)
	c := srv.client(t, "tab-1")

	if w := c.do(http.MethodPost, "/api/navigate", map[string]int{"room": 3}); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 navigating to locked room, got %d", w.Code)
	}
	if w := c.do(http.MethodPost, "/api/navigate", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without room, got %d", w.Code)
	}

	c.do(http.MethodPost, "/api/advance", nil)
	srv.persona.replies = []string{
		`{"unlocked":true,"message":"ok"}`,
		`{"status":"confirmed","confirmed_fields":["id","date","sqft"]}`,
	}
	c.do(http.MethodPost, "/api/rooms/1/chat", map[string]string{"message": "go"})
	c.do(http.MethodPost, "/api/rooms/2/chat", map[string]string{"message": "fields"})

	if w := c.do(http.MethodPost, "/api/navigate", map[string]int{"room": 3}); w.Code != http.StatusOK {
		t.Fatalf("navigate: %d %s", w.Code, w.Body.String())
	}

	w := c.do(http.MethodGet, "/api/rooms/3/downloads/data.csv", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Expected text/csv, got %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "data.csv") {
		t.Errorf("Unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(w.Body.String(), "id,date,price") {
		t.Errorf("Unexpected body %q", w.Body.String())
	}

	if w := c.do(http.MethodGet, "/api/rooms/3/downloads/secret.csv", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for undeclared file, got %d", w.Code)
	}
}

func TestResetStartsOver(t *testing.T) {
	srv := newTestServer(t, 100)
	c := srv.client(t, "tab-1")
	c.do(http.MethodPost, "/api/advance", nil)

	if w := c.do(http.MethodPost, "/api/reset", nil); w.Code != http.StatusOK {
		t.Fatalf("reset: %d", w.Code)
	}
	state := decode[game.StateView](t, c.do(http.MethodGet, "/api/state", nil))
	if state.MaxUnlocked != 0 {
		t.Errorf("Expected fresh game after reset, got max %d", state.MaxUnlocked)
	}
}

func TestMeConfigScenariosHealth(t *testing.T) {
	srv := newTestServer(t, 100)
	c := srv.client(t, "tab-1")

	me := decode[map[string]any](t, c.do(http.MethodGet, "/api/me", nil))
	if me["session_id"] != "tab-1" || !strings.HasPrefix(me["user_id"].(string), "anon_") {
		t.Errorf("Unexpected /api/me %v", me)
	}

	cfg := decode[map[string]any](t, c.do(http.MethodGet, "/api/config", nil))
	if cfg["scenario"] != "test_heist" || cfg["max_message_chars"] != float64(1000) {
		t.Errorf("Unexpected /api/config %v", cfg)
	}

	list := decode[map[string]any](t, c.do(http.MethodGet, "/api/scenarios", nil))
	if list["active"] != "test_heist" {
		t.Errorf("Unexpected /api/scenarios %v", list)
	}

	health := decode[map[string]any](t, c.do(http.MethodGet, "/health", nil))
	if health["status"] != "healthy" {
		t.Errorf("Unexpected health %v", health)
	}
}
