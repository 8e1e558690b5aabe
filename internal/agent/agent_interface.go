package agent

import (
	"context"
)

// Generator produces one persona reply.
// Implementations are called from a worker goroutine and may block.
type Generator interface {
	// Generate sends the system instruction, prior history and a new user
	// message to the model and returns its text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Provider resolves a ready Generator for a call. Returning an error that
// wraps ErrMissingCredential marks the model as unavailable rather than
// failed.
type Provider interface {
	// Name labels the provider in logs and metrics.
	Name() string

	// Generator returns a Generator for the next call.
	Generator(ctx context.Context) (Generator, error)
}

// Ensure providers implement Provider.
var (
	_ Provider = (*GeminiProvider)(nil)
	_ Provider = (*GrpcClient)(nil)
	_ Provider = StaticProvider{}
)

// StaticProvider always hands out the same Generator. It is used for the
// gRPC sidecar and in tests.
type StaticProvider struct {
	Label string
	Gen   Generator
}

// Name implements Provider.
func (p StaticProvider) Name() string {
	if p.Label == "" {
		return "static"
	}
	return p.Label
}

// Generator implements Provider.
func (p StaticProvider) Generator(_ context.Context) (Generator, error) {
	if p.Gen == nil {
		return nil, ErrMissingCredential
	}
	return p.Gen, nil
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}
