package game

import (
	"github.com/ashureev/escape-labs/internal/conversation"
	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/reply"
	"github.com/ashureev/escape-labs/internal/scenario"
)

// Condition is the exit rule of a chat room. Flag takes precedence over
// Phrase; a condition with neither is never met.
type Condition struct {
	Phrase string
	Flag   string
}

// ConditionFor builds the condition declared by a room.
func ConditionFor(rule scenario.UnlockRule) Condition {
	return Condition{Phrase: rule.Phrase, Flag: rule.Flag}
}

// Met evaluates the condition against the log. It does not modify the log.
func (c Condition) Met(log *conversation.Log) bool {
	if log == nil {
		return false
	}
	switch {
	case c.Flag != "":
		for _, t := range log.Turns {
			if t.Role != domain.RoleAssistant {
				continue
			}
			if r, ok := reply.Extract(t.Source()); ok && r.True(c.Flag) {
				return true
			}
		}
		return false
	case c.Phrase != "":
		return log.ContainsAssistantText(c.Phrase)
	default:
		return false
	}
}
