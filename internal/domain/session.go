package domain

import (
	"time"
)

// SessionRecord is the stored snapshot of one browser tab's game.
type SessionRecord struct {
	UserID    string
	SessionID string
	Scenario  string
	StateJSON string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record has been idle longer than ttl.
func (r *SessionRecord) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(r.UpdatedAt) > ttl
}
