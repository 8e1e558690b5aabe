// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/escape-labs/internal/domain"
)

// Repository defines the interface for persisting learners and their game
// session snapshots.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetSession retrieves a session snapshot. Returns nil, nil when absent.
	GetSession(ctx context.Context, userID, sessionID string) (*domain.SessionRecord, error)

	// UpsertSession creates or replaces a session snapshot.
	UpsertSession(ctx context.Context, rec *domain.SessionRecord) error

	// DeleteSession removes a session snapshot.
	DeleteSession(ctx context.Context, userID, sessionID string) error

	// GetExpiredSessions lists snapshots not updated within ttl.
	GetExpiredSessions(ctx context.Context, ttl time.Duration) ([]*domain.SessionRecord, error)

	// CleanupExpiredSessions removes snapshots not updated within ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
