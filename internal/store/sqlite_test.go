package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUserRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUser(ctx, "anon_missing")
	require.NoError(t, err)
	require.Nil(t, got)

	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, repo.UpsertUser(ctx, &domain.User{
		UserID:     "anon_1",
		Username:   "anon-1",
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	later := now.Add(time.Hour)
	require.NoError(t, repo.UpdateLastSeen(ctx, "anon_1", later))

	got, err = repo.GetUser(ctx, "anon_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "anon-1", got.Username)
	require.True(t, got.LastSeenAt.Equal(later))
	require.True(t, got.CreatedAt.Equal(now))

	require.NoError(t, repo.UpdateLastSeen(ctx, "anon_missing", later))
}

func TestSessionUpsertKeepsCreatedAt(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	created := time.Now().Add(-time.Hour).Truncate(time.Second)
	rec := &domain.SessionRecord{
		UserID:    "anon_1",
		SessionID: "tab-1",
		Scenario:  "house_price_prediction",
		StateJSON: `{"v":1}`,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, repo.UpsertSession(ctx, rec))

	require.NoError(t, repo.UpsertSession(ctx, &domain.SessionRecord{
		UserID:    "anon_1",
		SessionID: "tab-1",
		Scenario:  "house_price_prediction",
		StateJSON: `{"v":2}`,
	}))

	got, err := repo.GetSession(ctx, "anon_1", "tab-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, `{"v":2}`, got.StateJSON)
	require.True(t, got.CreatedAt.Equal(created))
	require.True(t, got.UpdatedAt.After(created))

	other, err := repo.GetSession(ctx, "anon_1", "tab-2")
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestSessionDelete(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertSession(ctx, &domain.SessionRecord{
		UserID: "anon_1", SessionID: "default", Scenario: "s", StateJSON: "{}",
	}))
	require.NoError(t, repo.DeleteSession(ctx, "anon_1", "default"))
	require.NoError(t, repo.DeleteSession(ctx, "anon_1", "default"))

	got, err := repo.GetSession(ctx, "anon_1", "default")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestExpiredSessions(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-3 * time.Hour)
	for i, updated := range []time.Time{old, old, time.Now()} {
		require.NoError(t, repo.UpsertSession(ctx, &domain.SessionRecord{
			UserID:    "anon_1",
			SessionID: fmt.Sprintf("tab-%d", i),
			Scenario:  "s",
			StateJSON: "{}",
			CreatedAt: updated,
			UpdatedAt: updated,
		}))
	}

	expired, err := repo.GetExpiredSessions(ctx, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, expired, 2)

	n, err := repo.CleanupExpiredSessions(ctx, 2*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	expired, err = repo.GetExpiredSessions(ctx, 2*time.Hour)
	require.NoError(t, err)
	require.Empty(t, expired)

	got, err := repo.GetSession(ctx, "anon_1", "tab-2")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "escape.db")
	ctx := context.Background()

	repo, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.UpsertSession(ctx, &domain.SessionRecord{
		UserID: "anon_1", SessionID: "default", Scenario: "s", StateJSON: `{"ok":true}`,
	}))
	require.NoError(t, repo.Close())

	repo, err = NewSQLite(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetSession(ctx, "anon_1", "default")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, `{"ok":true}`, got.StateJSON)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := withRetry(ctx, "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	plain := errors.New("constraint failed")
	err = withRetry(ctx, "test", func() error {
		calls++
		return plain
	})
	require.ErrorIs(t, err, plain)
	require.Equal(t, 1, calls)

	require.False(t, isBusyError(nil))
	require.True(t, isBusyError(errors.New("SQLITE_BUSY")))
}
