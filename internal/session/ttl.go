package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/escape-labs/internal/store"
)

// DefaultSweepInterval is how often the TTL worker looks for idle sessions.
const DefaultSweepInterval = 5 * time.Minute

// CleanupCallback is called for every session removed by the TTL worker.
type CleanupCallback func(key Key)

// StartTTLWorker runs a background goroutine that periodically deletes
// sessions idle longer than ttl. It stops when ctx is done.
func StartTTLWorker(ctx context.Context, repo store.Repository, ttl, interval time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				SweepExpired(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// SweepExpired deletes every session idle longer than ttl and returns how
// many were removed.
func SweepExpired(ctx context.Context, repo store.Repository, ttl time.Duration, onCleanup CleanupCallback) int {
	expired, err := repo.GetExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to get expired sessions", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	slog.Info("TTL worker found expired sessions", "count", len(expired))

	cleaned := 0
	for _, rec := range expired {
		key := Key{UserID: rec.UserID, SessionID: rec.SessionID}
		if onCleanup != nil {
			onCleanup(key)
		}
		if err := repo.DeleteSession(ctx, rec.UserID, rec.SessionID); err != nil {
			slog.Warn("TTL worker failed to delete session",
				"error", err,
				"user_id", rec.UserID,
				"session_id", rec.SessionID)
			continue
		}
		cleaned++
	}

	slog.Info("TTL worker cleanup completed", "cleaned", cleaned)
	return cleaned
}
