package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// APIKeyName is the secret that holds the Gemini API key.
const APIKeyName = "GOOGLE_API_KEY"

// KeySource looks up named secrets.
type KeySource interface {
	Lookup(name string) (string, bool)
}

// KeyChain tries each source in order and returns the first non-empty value.
type KeyChain []KeySource

// Lookup implements KeySource.
func (k KeyChain) Lookup(name string) (string, bool) {
	for _, src := range k {
		if src == nil {
			continue
		}
		if v, ok := src.Lookup(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// EnvKeySource reads secrets from the process environment.
type EnvKeySource struct{}

// Lookup implements KeySource.
func (EnvKeySource) Lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// FileKeySource reads secrets from a flat YAML mapping such as
//
//	GOOGLE_API_KEY: "..."
//
// The file is read on every lookup so edits apply without a restart.
// A missing file holds no secrets.
type FileKeySource struct {
	Path string
}

// Lookup implements KeySource.
func (f FileKeySource) Lookup(name string) (string, bool) {
	secrets, err := f.load()
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(secrets[name])
	return v, v != ""
}

func (f FileKeySource) load() (map[string]string, error) {
	if f.Path == "" {
		return nil, fs.ErrNotExist
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var secrets map[string]string
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parse secrets file %s: %w", f.Path, err)
	}
	return secrets, nil
}

// Check reports a parse error in the secrets file. A missing file is fine.
func (f FileKeySource) Check() error {
	_, err := f.load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// DefaultKeys returns the lookup order used by the server: the secrets
// file first, then the environment.
func DefaultKeys(secretsPath string) KeyChain {
	return KeyChain{FileKeySource{Path: secretsPath}, EnvKeySource{}}
}
