// Package conversation stores the ordered chat turns of one room.
package conversation

import (
	"strings"
	"time"

	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/reply"
	"github.com/oklog/ulid/v2"
)

// Transform maps a persona's raw reply to the text shown to the learner.
type Transform func(raw string) string

// Log is the append-only turn history of one room. It is owned by a
// single session and is not safe for concurrent use.
type Log struct {
	Key   string        `json:"key"`
	Turns []domain.Turn `json:"turns"`
}

// New creates an empty log for the given room key.
func New(key string) *Log {
	return &Log{Key: key}
}

// Append adds a turn to the end of the log, filling in ID and timestamp
// when they are unset.
func (l *Log) Append(turn domain.Turn) domain.Turn {
	if turn.ID == "" {
		turn.ID = ulid.Make().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	l.Turns = append(l.Turns, turn)
	return turn
}

// AppendUser records learner input.
func (l *Log) AppendUser(text string) domain.Turn {
	return l.Append(domain.Turn{Role: domain.RoleUser, Text: text})
}

// AppendAssistant records a persona reply, keeping the raw text and the
// transformed display text. A nil transform displays the raw text.
func (l *Log) AppendAssistant(raw string, transform Transform) domain.Turn {
	text := raw
	if transform != nil {
		text = transform(raw)
	}
	r := raw
	return l.Append(domain.Turn{Role: domain.RoleAssistant, Text: text, Raw: &r})
}

// All returns a copy of the turns in insertion order.
func (l *Log) All() []domain.Turn {
	out := make([]domain.Turn, len(l.Turns))
	copy(out, l.Turns)
	return out
}

// Len returns the number of turns.
func (l *Log) Len() int {
	return len(l.Turns)
}

// Since returns a copy of the turns from index n onward. An n past the end
// yields an empty slice.
func (l *Log) Since(n int) []domain.Turn {
	if n < 0 {
		n = 0
	}
	if n >= len(l.Turns) {
		return nil
	}
	out := make([]domain.Turn, len(l.Turns)-n)
	copy(out, l.Turns[n:])
	return out
}

// Backfill migrates assistant turns that were stored without raw text.
// When the displayed text holds a structured reply, it becomes the raw text
// and the displayed text is recomputed with transform. Other turns are left
// as plain text. Returns the number of turns migrated; a second pass always
// returns 0.
func (l *Log) Backfill(transform Transform) int {
	if transform == nil {
		return 0
	}
	migrated := 0
	for i := range l.Turns {
		t := &l.Turns[i]
		if t.Role != domain.RoleAssistant || t.HasRaw() {
			continue
		}
		if _, ok := reply.Extract(t.Text); !ok {
			continue
		}
		raw := t.Text
		t.Raw = &raw
		t.Text = transform(raw)
		migrated++
	}
	return migrated
}

// ContainsAssistantText returns true if any assistant turn's displayed text
// contains phrase.
func (l *Log) ContainsAssistantText(phrase string) bool {
	for _, t := range l.Turns {
		if t.Role == domain.RoleAssistant && strings.Contains(t.Text, phrase) {
			return true
		}
	}
	return false
}
