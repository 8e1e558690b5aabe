package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/game"
	"github.com/ashureev/escape-labs/internal/scenario/scenariotest"
	"github.com/ashureev/escape-labs/internal/session"
	"github.com/ashureev/escape-labs/internal/store"
	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
)

type queuedPersona struct {
	mu      sync.Mutex
	replies []string
}

func (p *queuedPersona) Send(_ context.Context, _, _ string, _ []domain.Turn) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.replies) == 0 {
		return "..."
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r
}

type playFixture struct {
	player   *Player
	out      *bytes.Buffer
	sessions *session.Manager
	key      session.Key
	dir      string
}

func newPlayFixture(t *testing.T, replies ...string) *playFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := store.NewSQLite(store.MemoryPath)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	engine := game.NewEngine(scenariotest.Load(t), &queuedPersona{replies: replies}, game.WithLogger(logger))
	sessions := session.NewManager(repo, engine, logger)
	key := session.Key{UserID: LocalUser, SessionID: "test"}
	out := &bytes.Buffer{}
	dir := t.TempDir()
	return &playFixture{
		player:   NewPlayer(sessions, key, out, NewRenderer(true), dir),
		out:      out,
		sessions: sessions,
		key:      key,
		dir:      dir,
	}
}

// at puts the session in room i with every room up to i unlocked.
func (f *playFixture) at(t *testing.T, i int) {
	t.Helper()
	err := f.sessions.With(context.Background(), f.key, func(sess *game.Session) error {
		sess.Progress.MaxUnlocked = i
		sess.Progress.Current = i
		return nil
	})
	if err != nil {
		t.Fatalf("set room: %v", err)
	}
}

func (f *playFixture) session(t *testing.T) game.Session {
	t.Helper()
	var out game.Session
	err := f.sessions.With(context.Background(), f.key, func(sess *game.Session) error {
		out = *sess
		return nil
	})
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return out
}

func TestPlayBriefing(t *testing.T) {
	f := newPlayFixture(t, `{"message":"Exactly right.","unlocked":true}`)

	in := strings.NewReader("/next\nWe predict the sale price, a regression task\n/status\n/quit\n")
	if err := f.player.Run(context.Background(), in); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := f.out.String()
	for _, want := range []string{"Welcome", "Briefing", "persona> Exactly right.", "Unlocked: Discovery", "fields 0/3"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}

	sess := f.session(t)
	if sess.Progress.MaxUnlocked != 2 {
		t.Errorf("Expected rooms unlocked up to 2, got %d", sess.Progress.MaxUnlocked)
	}
	if sess.Progress.Current != 1 {
		t.Errorf("Expected to stay in room 1, got %d", sess.Progress.Current)
	}
}

func TestPlayEndsOnEOF(t *testing.T) {
	f := newPlayFixture(t)
	if err := f.player.Run(context.Background(), strings.NewReader("")); err != nil {
		t.Errorf("Expected nil on EOF, got %v", err)
	}
}

func TestPlayDiscovery(t *testing.T) {
	f := newPlayFixture(t, `{"message":"Yes, price and bedrooms exist.","status":"confirmed","confirmed_fields":["price","bedrooms"]}`)
	f.at(t, 2)
	ctx := context.Background()

	if _, err := f.player.Handle(ctx, "Is there a price and a bedroom count?"); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if _, err := f.player.Handle(ctx, "/fields"); err != nil {
		t.Fatalf("/fields failed: %v", err)
	}

	out := f.out.String()
	for _, want := range []string{"New fields: price, bedrooms", "Number of bedrooms", "Sale price"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	sess := f.session(t)
	if got := sess.Ledger.Len(); got != 2 {
		t.Errorf("Expected 2 discovered fields, got %d", got)
	}
}

func TestPlaySubmit(t *testing.T) {
	f := newPlayFixture(t)
	f.at(t, 5)
	ctx := context.Background()

	if _, err := f.player.Handle(ctx, "/submit id, price"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !strings.Contains(f.out.String(), game.MessageRedundant) {
		t.Errorf("Expected redundant message, got:\n%s", f.out.String())
	}
	if f.session(t).Submission.Escaped {
		t.Fatal("Expected rejected submission to leave the session unescaped")
	}

	_, err := f.player.Handle(ctx, "/submit price rooms")
	if !errdefs.IsInvalidArgument(err) {
		t.Errorf("Expected invalid argument for unknown column, got %v", err)
	}

	if _, err := f.player.Handle(ctx, "/submit price,bedrooms,sqft"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !strings.Contains(f.out.String(), game.MessageEscaped) {
		t.Errorf("Expected escaped message, got:\n%s", f.out.String())
	}
	if !f.session(t).Submission.Escaped {
		t.Error("Expected session to be escaped")
	}
}

func TestPlayColumnsStable(t *testing.T) {
	f := newPlayFixture(t)
	f.at(t, 5)
	ctx := context.Background()

	if _, err := f.player.Handle(ctx, "/columns"); err != nil {
		t.Fatalf("/columns failed: %v", err)
	}
	first := f.out.String()
	f.out.Reset()
	if _, err := f.player.Handle(ctx, "/columns"); err != nil {
		t.Fatalf("/columns failed: %v", err)
	}
	if diff := cmp.Diff(first, f.out.String()); diff != "" {
		t.Errorf("Expected the same column order on every call (-first +second):\n%s", diff)
	}
}

func TestPlayDownload(t *testing.T) {
	f := newPlayFixture(t)
	f.at(t, 3)
	ctx := context.Background()

	_, err := f.player.Handle(ctx, "/download data.csv")
	if !errdefs.IsFailedPrecondition(err) {
		t.Fatalf("Expected locked download, got %v", err)
	}

	err = f.sessions.With(ctx, f.key, func(sess *game.Session) error {
		for _, name := range []string{"id", "price", "sqft"} {
			sess.Ledger.Add(name, nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	if _, err := f.player.Handle(ctx, "/download data.csv"); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(f.dir, "data.csv"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !strings.HasPrefix(string(data), "id,date,price") {
		t.Errorf("Unexpected file contents: %q", data)
	}
}

func TestPlayNavigation(t *testing.T) {
	f := newPlayFixture(t)
	ctx := context.Background()

	tests := []struct {
		line  string
		check func(error) bool
	}{
		{"/goto 4", errdefs.IsPermissionDenied},
		{"/goto four", errdefs.IsInvalidArgument},
		{"/back", errdefs.IsNotFound},
		{"/dance", errdefs.IsInvalidArgument},
		{"/download", errdefs.IsInvalidArgument},
		{"/submit", errdefs.IsInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			quit, err := f.player.Handle(ctx, tt.line)
			if quit {
				t.Error("Expected not to quit")
			}
			if !tt.check(err) {
				t.Errorf("Unexpected error class: %v", err)
			}
		})
	}

	if _, err := f.player.Handle(ctx, "/next"); err != nil {
		t.Fatalf("/next failed: %v", err)
	}
	if _, err := f.player.Handle(ctx, "/back"); err != nil {
		t.Fatalf("/back failed: %v", err)
	}
	if _, err := f.player.Handle(ctx, "/goto 1"); err != nil {
		t.Fatalf("/goto 1 failed: %v", err)
	}
	if got := f.session(t).Progress.Current; got != 1 {
		t.Errorf("Expected room 1, got %d", got)
	}
}

func TestPlayReset(t *testing.T) {
	f := newPlayFixture(t)
	f.at(t, 4)
	ctx := context.Background()

	if _, err := f.player.Handle(ctx, "/reset"); err != nil {
		t.Fatalf("/reset failed: %v", err)
	}
	sess := f.session(t)
	if sess.Progress.MaxUnlocked != 0 || sess.Progress.Current != 0 {
		t.Errorf("Expected a fresh session, got %+v", sess.Progress)
	}
	if !strings.Contains(f.out.String(), "Progress cleared.") {
		t.Errorf("Expected reset notice, got:\n%s", f.out.String())
	}
}

func TestQuitCommands(t *testing.T) {
	f := newPlayFixture(t)
	for _, line := range []string{"/quit", "/exit", "  /quit  "} {
		quit, err := f.player.Handle(context.Background(), line)
		if err != nil || !quit {
			t.Errorf("Handle(%q) = %v, %v; expected quit", line, quit, err)
		}
	}
}

func TestSplitColumns(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"price,bedrooms", []string{"price", "bedrooms"}},
		{"price bedrooms\tsqft", []string{"price", "bedrooms", "sqft"}},
		{" price , , bedrooms ", []string{"price", "bedrooms"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := splitColumns(tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("splitColumns(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
