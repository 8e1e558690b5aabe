package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/game"
	"github.com/ashureev/escape-labs/internal/identity"
	"github.com/ashureev/escape-labs/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type fakeChatter struct {
	mu    sync.Mutex
	calls []chatCall
}

type chatCall struct {
	key     session.Key
	room    int
	message string
}

func (f *fakeChatter) Chat(_ context.Context, key session.Key, room int, message string) (game.ChatResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chatCall{key: key, room: room, message: message})
	f.mu.Unlock()
	if message == "" {
		return game.ChatResult{}, game.ErrEmptyMessage
	}
	return game.ChatResult{
		Room:      room,
		Assistant: domain.Turn{Role: domain.RoleAssistant, Text: "echo: " + message},
	}, nil
}

func newSocketServer(t *testing.T, chat Chatter, reg *Registry) *httptest.Server {
	t.Helper()
	h := NewHandler(chat, reg, "", true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := identity.WithIdentity(r.Context(), "anon_1", "tab-1")
		h.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, in ClientFrame) ServerFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out ServerFrame
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

func TestSocketChat(t *testing.T) {
	chat := &fakeChatter{}
	reg := NewRegistry()
	conn := dial(t, newSocketServer(t, chat, reg), "?room=2")

	out := roundTrip(t, conn, ClientFrame{Type: TypeChat, Message: "hello"})
	if out.Type != TypeReply || out.Result == nil || out.Result.Assistant.Text != "echo: hello" {
		t.Fatalf("Unexpected frame %+v", out)
	}
	if out.Result.Room != 2 {
		t.Errorf("Expected default room 2, got %d", out.Result.Room)
	}

	room := 4
	out = roundTrip(t, conn, ClientFrame{Type: TypeChat, Room: &room, Message: "x"})
	if out.Result == nil || out.Result.Room != 4 {
		t.Errorf("Expected explicit room 4, got %+v", out)
	}

	chat.mu.Lock()
	key := chat.calls[0].key
	chat.mu.Unlock()
	if key != (session.Key{UserID: "anon_1", SessionID: "tab-1"}) {
		t.Errorf("Unexpected session key %+v", key)
	}
	if reg.Get("anon_1", "tab-1") == nil {
		t.Error("Expected socket to be registered")
	}
}

func TestSocketErrorsAndPing(t *testing.T) {
	conn := dial(t, newSocketServer(t, &fakeChatter{}, NewRegistry()), "")

	out := roundTrip(t, conn, ClientFrame{Type: TypePing})
	if out.Type != TypePong {
		t.Errorf("Expected pong, got %+v", out)
	}

	out = roundTrip(t, conn, ClientFrame{Type: TypeChat})
	if out.Type != TypeError || out.Status != http.StatusBadRequest {
		t.Errorf("Expected 400 error frame, got %+v", out)
	}

	out = roundTrip(t, conn, ClientFrame{Type: "dance"})
	if out.Type != TypeError {
		t.Errorf("Expected error frame for unknown type, got %+v", out)
	}
}

func TestSocketInvalidRoomQuery(t *testing.T) {
	srv := newSocketServer(t, &fakeChatter{}, NewRegistry())
	resp, err := http.Get(srv.URL + "/ws/chat?room=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestRegistryCloseEndsSocket(t *testing.T) {
	reg := NewRegistry()
	conn := dial(t, newSocketServer(t, &fakeChatter{}, reg), "")

	// Wait for registration.
	deadline := time.Now().Add(5 * time.Second)
	for reg.Get("anon_1", "tab-1") == nil {
		if time.Now().After(deadline) {
			t.Fatal("socket never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	reg.Close("anon_1", "tab-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out ServerFrame
	if err := wsjson.Read(ctx, conn, &out); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("Expected normal closure, got %v", err)
	}
}
