// Package app assembles the game from configuration. Both the HTTP server
// and the terminal client start from here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/escape-labs/internal/agent"
	"github.com/ashureev/escape-labs/internal/config"
	"github.com/ashureev/escape-labs/internal/game"
	"github.com/ashureev/escape-labs/internal/scenario"
)

// App is the assembled game without any transport.
type App struct {
	Scenarios *scenario.Registry
	Scenario  *scenario.Scenario
	Provider  agent.Provider
	Persona   *agent.Client
	Engine    *game.Engine

	// Health probes the persona backend. Nil for providers without one.
	Health func(ctx context.Context) error

	closers []func()
}

// NewProvider returns the persona backend selected by cfg. The returned
// close func is never nil.
func NewProvider(cfg config.LLMConfig, logger *slog.Logger) (agent.Provider, func(ctx context.Context) error, func(), error) {
	switch cfg.Provider {
	case config.ProviderGRPC:
		client, err := agent.NewGrpcClient(cfg.GrpcAddr, logger)
		if err != nil {
			return nil, nil, func() {}, err
		}
		return client, client.Health, client.Close, nil
	case config.ProviderGemini, "":
		keys := agent.DefaultKeys(cfg.SecretsFile)
		if err := (agent.FileKeySource{Path: cfg.SecretsFile}).Check(); err != nil {
			logger.Warn("Secrets file unreadable, falling back to environment", "path", cfg.SecretsFile, "error", err)
		}
		return agent.NewGeminiProvider(cfg.ModelName, keys), nil, func() {}, nil
	default:
		return nil, nil, func() {}, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// New loads the configured scenario and wires the persona and engine.
// Content problems are logged but do not stop startup.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	scenarios := scenario.NewRegistry(cfg.Scenario.Dir)
	scn, err := scenarios.Get(cfg.Scenario.Name)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	for _, problem := range scn.Check() {
		logger.Warn("Scenario content problem", "scenario", scn.Name, "error", problem)
	}

	provider, health, closeProvider, err := NewProvider(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("persona provider: %w", err)
	}

	persona := agent.NewClient(provider,
		agent.WithTimeout(cfg.LLM.Timeout),
		agent.WithLogger(logger),
	)
	engine := game.NewEngine(scn, persona,
		game.WithLogger(logger),
		game.WithMaxMessageChars(cfg.LLM.MaxMessageChars),
	)

	logger.Info("Game assembled",
		"scenario", scn.Name,
		"rooms", scn.RoomCount(),
		"provider", provider.Name(),
		"model", cfg.LLM.ModelName,
	)

	return &App{
		Scenarios: scenarios,
		Scenario:  scn,
		Provider:  provider,
		Persona:   persona,
		Engine:    engine,
		Health:    health,
		closers:   []func(){closeProvider},
	}, nil
}

// WatchContent reloads scenario text on change until ctx is done. It is a
// no-op for scenarios without an on-disk directory.
func (a *App) WatchContent(ctx context.Context, logger *slog.Logger) error {
	if a.Scenario.Dir() == "" {
		return nil
	}
	return a.Scenario.Library().Watch(ctx, a.Scenario.Dir(), logger)
}

// Close releases the persona backend.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
