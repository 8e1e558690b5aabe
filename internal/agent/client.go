package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/metrics"
)

// Client sends chat messages to a persona under a wall-clock timeout.
//
// Each call runs the model on its own goroutine. When the timeout fires the
// caller returns SentinelTimeout and the goroutine is abandoned: it keeps
// running until the provider returns, then drops its result into a buffered
// slot nobody reads. The worker's context is detached from the caller so an
// early client disconnect does not change what the model sees.
type Client struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for call failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a persona client backed by provider.
func NewClient(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the configured wait bound.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

type result struct {
	text string
	err  error
}

// Send asks the persona for a reply to message given the prior turns.
// It never fails: missing credentials, call errors and timeouts come back
// as sentinel text.
func (c *Client) Send(ctx context.Context, system, message string, history []domain.Turn) string {
	name := "none"
	if c.provider != nil {
		name = c.provider.Name()
	}
	start := time.Now()
	text, outcome := c.send(ctx, system, message, history)
	metrics.LLMRequests.WithLabelValues(name, outcome).Inc()
	metrics.LLMRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return text
}

func (c *Client) send(ctx context.Context, system, message string, history []domain.Turn) (string, string) {
	if c.provider == nil {
		return SentinelUnavailable, metrics.OutcomeUnavailable
	}
	gen, err := c.provider.Generator(ctx)
	if err != nil {
		if errors.Is(err, ErrMissingCredential) {
			return SentinelUnavailable, metrics.OutcomeUnavailable
		}
		c.logger.Warn("persona provider failed", "provider", c.provider.Name(), "error", err)
		return fmt.Sprintf(sentinelErrorFormat, err), metrics.OutcomeError
	}

	req := GenerateRequest{
		System:  system,
		History: TranslateHistory(history),
		Message: message,
	}

	done := make(chan result, 1)
	workCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		text, err := gen.Generate(workCtx, req)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			c.logger.Warn("persona call failed", "provider", c.provider.Name(), "error", res.err)
			return fmt.Sprintf(sentinelErrorFormat, res.err), metrics.OutcomeError
		}
		return res.text, metrics.OutcomeOK
	case <-timer.C:
		c.logger.Warn("persona call timed out", "provider", c.provider.Name(), "timeout", c.timeout)
		return SentinelTimeout, metrics.OutcomeTimeout
	case <-ctx.Done():
		return fmt.Sprintf(sentinelErrorFormat, ctx.Err()), metrics.OutcomeError
	}
}
