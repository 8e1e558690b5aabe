// Package game implements the escape room: room progression, unlock
// evaluation, the discovery ledger, scoring and the final submission.
package game

import (
	"time"

	"github.com/ashureev/escape-labs/internal/conversation"
	"github.com/google/uuid"
)

// Session is everything one learner's game owns. It is passed explicitly to
// every Engine call and is not safe for concurrent use.
type Session struct {
	ID         string                       `json:"id"`
	Scenario   string                       `json:"scenario"`
	Progress   Progression                  `json:"progress"`
	Logs       map[string]*conversation.Log `json:"logs"`
	Ledger     DiscoveryLedger              `json:"ledger"`
	Score      ScoreCounter                 `json:"score"`
	Submission Submission                   `json:"submission"`
	CreatedAt  time.Time                    `json:"created_at"`
}

// Submission holds the final room's state.
type Submission struct {
	// Order is the shuffled column list offered to the learner.
	Order []string `json:"order,omitempty"`
	// Source is the dataset header Order was shuffled from.
	Source  []string `json:"source,omitempty"`
	Escaped bool     `json:"escaped"`
}

// NewSession starts a game at the first room.
func NewSession(scenarioName string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Scenario:  scenarioName,
		Logs:      make(map[string]*conversation.Log),
		CreatedAt: time.Now().UTC(),
	}
}

// Log returns the conversation for a room key, creating it on first use.
func (s *Session) Log(key string) *conversation.Log {
	if s.Logs == nil {
		s.Logs = make(map[string]*conversation.Log)
	}
	l, ok := s.Logs[key]
	if !ok {
		l = conversation.New(key)
		s.Logs[key] = l
	}
	return l
}

// existingLog returns the log for key without creating one.
func (s *Session) existingLog(key string) *conversation.Log {
	return s.Logs[key]
}
