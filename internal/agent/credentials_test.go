package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type mapKeys map[string]string

func (m mapKeys) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func TestKeyChainPriority(t *testing.T) {
	chain := KeyChain{mapKeys{APIKeyName: ""}, mapKeys{APIKeyName: "from-second"}, mapKeys{APIKeyName: "from-third"}}
	got, ok := chain.Lookup(APIKeyName)
	if !ok || got != "from-second" {
		t.Errorf("Expected first non-empty key, got %q (ok=%v)", got, ok)
	}

	if _, ok := (KeyChain{nil, mapKeys{}}).Lookup(APIKeyName); ok {
		t.Error("Expected missing key to report not found")
	}
}

func TestFileKeySource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(path, []byte("GOOGLE_API_KEY: \"file-key\"\n"), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}

	src := FileKeySource{Path: path}
	if got, ok := src.Lookup(APIKeyName); !ok || got != "file-key" {
		t.Errorf("Expected file-key, got %q (ok=%v)", got, ok)
	}
	if err := src.Check(); err != nil {
		t.Errorf("Expected valid file, got %v", err)
	}

	missing := FileKeySource{Path: filepath.Join(dir, "nope.yaml")}
	if _, ok := missing.Lookup(APIKeyName); ok {
		t.Error("Expected missing file to hold no secrets")
	}
	if err := missing.Check(); err != nil {
		t.Errorf("Expected missing file to be fine, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("- not\n- a map\n"), 0o600); err != nil {
		t.Fatalf("write bad secrets: %v", err)
	}
	if err := (FileKeySource{Path: bad}).Check(); err == nil {
		t.Error("Expected parse error for non-mapping secrets file")
	}
}

func TestDefaultKeysPrefersSecretsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(path, []byte("GOOGLE_API_KEY: file-key\n"), 0o600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	t.Setenv(APIKeyName, "env-key")

	if got, _ := DefaultKeys(path).Lookup(APIKeyName); got != "file-key" {
		t.Errorf("Expected secrets file to win, got %q", got)
	}
	if got, _ := DefaultKeys(filepath.Join(dir, "absent.yaml")).Lookup(APIKeyName); got != "env-key" {
		t.Errorf("Expected environment fallback, got %q", got)
	}
}

func TestGeminiProviderMissingKey(t *testing.T) {
	p := NewGeminiProvider("", mapKeys{})
	_, err := p.Generator(context.Background())
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Expected ErrMissingCredential, got %v", err)
	}
	if p.model != DefaultConfig().ModelName {
		t.Errorf("Expected default model, got %q", p.model)
	}
}
