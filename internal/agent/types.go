// Package agent talks to the persona language model.
package agent

import (
	"errors"
	"time"

	"github.com/ashureev/escape-labs/internal/domain"
)

// Model-side roles used in history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Sentinel replies. The chat loop shows them inline instead of failing.
const (
	SentinelUnavailable = "[LLM unavailable: missing API key]"
	SentinelTimeout     = "[LLM timeout: please try again or simplify your message]"
	sentinelErrorFormat = "[LLM error: %v]"
)

// DefaultTimeout bounds how long a caller waits for a reply.
const DefaultTimeout = 15 * time.Second

// ErrMissingCredential is returned by providers that have no API key.
var ErrMissingCredential = errors.New("missing API key")

// Message is one entry of model history.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// GenerateRequest is the input to a single model call.
type GenerateRequest struct {
	System  string    `json:"system"`
	History []Message `json:"history"`
	Message string    `json:"message"`
}

// Config holds persona model configuration.
type Config struct {
	Provider  string
	ModelName string
	Timeout   time.Duration
	GrpcAddr  string
}

// DefaultConfig returns default persona model configuration.
func DefaultConfig() Config {
	return Config{
		Provider:  "gemini",
		ModelName: "gemini-2.5-flash-lite",
		Timeout:   DefaultTimeout,
	}
}

// TranslateHistory converts conversation turns to model history. Only user
// and assistant turns with text are kept; assistant turns become model
// turns and send their raw reply when one was recorded.
func TranslateHistory(turns []domain.Turn) []Message {
	history := make([]Message, 0, len(turns))
	for _, t := range turns {
		var role string
		switch t.Role {
		case domain.RoleUser:
			role = RoleUser
		case domain.RoleAssistant:
			role = RoleModel
		default:
			continue
		}
		text := t.Source()
		if text == "" {
			continue
		}
		history = append(history, Message{Role: role, Text: text})
	}
	return history
}
