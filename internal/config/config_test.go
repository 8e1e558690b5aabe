package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %q", cfg.Port)
	}
	if cfg.DBPath != ":memory:" {
		t.Errorf("Expected in-memory database, got %q", cfg.DBPath)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Errorf("Expected 2h TTL, got %v", cfg.SessionTTL)
	}
	if cfg.LLM.Provider != ProviderGemini || cfg.LLM.Timeout != 15*time.Second || cfg.LLM.MaxMessageChars != 1000 {
		t.Errorf("Unexpected LLM defaults %+v", cfg.LLM)
	}
	if cfg.Scenario.Name != "house_price_prediction" {
		t.Errorf("Unexpected scenario %q", cfg.Scenario.Name)
	}
	if cfg.ConversationLog.Enabled {
		t.Error("Expected conversation log disabled by default")
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development mode without FRONTEND_URL")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("LLM_TIMEOUT_SECS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "90")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("FRONTEND_URL", "https://escape.example/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("Expected 30m, got %v", cfg.SessionTTL)
	}
	if cfg.LLM.Timeout != 5*time.Second {
		t.Errorf("Expected 5s, got %v", cfg.LLM.Timeout)
	}
	if cfg.RateLimit.Window != 90*time.Second {
		t.Errorf("Expected 90s, got %v", cfg.RateLimit.Window)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.IsDevelopment() {
		t.Error("Expected production mode")
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://escape.example" {
		t.Errorf("Unexpected origins %v", got)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"LLM_PROVIDER":       "openai",
		"MAX_USER_MSG_CHARS": "0",
		"SESSION_TTL":        "-1h",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", key, value)
			}
		})
	}

	t.Run("grpc without addr", func(t *testing.T) {
		t.Setenv("LLM_PROVIDER", "grpc")
		if _, err := Load(); err == nil {
			t.Error("Expected error for grpc provider without address")
		}
	})
}
