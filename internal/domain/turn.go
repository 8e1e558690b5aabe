package domain

import (
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	// RoleUser marks learner input.
	RoleUser Role = "user"
	// RoleAssistant marks persona replies.
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a room conversation.
//
// Text is what the learner sees. Raw holds the persona's original reply,
// which may be a JSON object; it is nil for user turns and for assistant
// turns recorded before structured replies were parsed.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Raw       *string   `json:"raw,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasRaw returns true if the turn carries the original reply text.
func (t Turn) HasRaw() bool {
	return t.Raw != nil
}

// Source returns the raw reply when present, otherwise the displayed text.
func (t Turn) Source() string {
	if t.Raw != nil {
		return *t.Raw
	}
	return t.Text
}
