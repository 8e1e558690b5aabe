// Package session loads, serializes and persists game sessions per
// learner tab.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/game"
	"github.com/ashureev/escape-labs/internal/store"
)

// Key identifies one game: an anonymous user and one of their tabs.
type Key struct {
	UserID    string
	SessionID string
}

func (k Key) String() string {
	return k.UserID + "/" + k.SessionID
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Manager gives callers exclusive access to a session. Interactions on the
// same key run one at a time; different keys never block each other.
type Manager struct {
	repo   store.Repository
	engine *game.Engine
	logger *slog.Logger

	mu    sync.Mutex
	locks map[Key]*keyLock
}

// NewManager creates a session manager backed by repo.
func NewManager(repo store.Repository, engine *game.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:   repo,
		engine: engine,
		logger: logger,
		locks:  make(map[Key]*keyLock),
	}
}

// Engine returns the engine sessions are played with.
func (m *Manager) Engine() *game.Engine {
	return m.engine
}

func (m *Manager) lock(key Key) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// With loads the session for key, runs fn with exclusive access and saves
// the result. A new session is started when none is stored, when the stored
// one belongs to another scenario, or when it cannot be decoded. The
// session is not saved if fn returns an error.
func (m *Manager) With(ctx context.Context, key Key, fn func(*game.Session) error) error {
	unlock := m.lock(key)
	defer unlock()

	sess, err := m.load(ctx, key)
	if err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		return err
	}
	return m.save(ctx, key, sess)
}

func (m *Manager) load(ctx context.Context, key Key) (*game.Session, error) {
	rec, err := m.repo.GetSession(ctx, key.UserID, key.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}
	scenarioName := m.engine.Scenario().Name
	if rec == nil {
		return m.engine.NewSession(), nil
	}
	if rec.Scenario != scenarioName {
		m.logger.Info("stored session belongs to another scenario, starting over",
			"user_id", key.UserID, "session_id", key.SessionID,
			"stored", rec.Scenario, "scenario", scenarioName)
		return m.engine.NewSession(), nil
	}

	var sess game.Session
	if err := json.Unmarshal([]byte(rec.StateJSON), &sess); err != nil {
		m.logger.Warn("discarding undecodable session",
			"user_id", key.UserID, "session_id", key.SessionID, "error", err)
		return m.engine.NewSession(), nil
	}
	sess.Scenario = scenarioName
	return &sess, nil
}

func (m *Manager) save(ctx context.Context, key Key, sess *game.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	now := time.Now()
	rec := &domain.SessionRecord{
		UserID:    key.UserID,
		SessionID: key.SessionID,
		Scenario:  sess.Scenario,
		StateJSON: string(data),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: now,
	}
	if err := m.repo.UpsertSession(ctx, rec); err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	if err := m.repo.UpdateLastSeen(ctx, key.UserID, now); err != nil {
		m.logger.Warn("failed to update last seen", "user_id", key.UserID, "error", err)
	}
	return nil
}

// Reset discards the stored session for key.
func (m *Manager) Reset(ctx context.Context, key Key) error {
	unlock := m.lock(key)
	defer unlock()
	return m.repo.DeleteSession(ctx, key.UserID, key.SessionID)
}
