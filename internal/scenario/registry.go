package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/containerd/errdefs"
)

// Info summarizes an available scenario.
type Info struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Rooms int    `json:"rooms"`
}

// List returns every directory under root that holds a loadable manifest,
// sorted by name. Directories with broken manifests are skipped.
func List(root string) ([]Info, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read scenarios dir: %w", err)
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := LoadDir(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, Info{Name: s.Name, Label: s.Label(), Rooms: s.RoomCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Registry caches loaded scenarios by name.
type Registry struct {
	root string

	mu     sync.Mutex
	loaded map[string]*Scenario
}

// NewRegistry creates a registry over root.
func NewRegistry(root string) *Registry {
	return &Registry{root: root, loaded: make(map[string]*Scenario)}
}

// Root returns the scenarios directory.
func (r *Registry) Root() string {
	return r.root
}

// List returns the available scenarios.
func (r *Registry) List() ([]Info, error) {
	return List(r.root)
}

// Get loads the named scenario once and returns the cached value afterwards.
func (r *Registry) Get(name string) (*Scenario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.loaded[name]; ok {
		return s, nil
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid scenario name %q: %w", name, errdefs.ErrInvalidArgument)
	}
	s, err := LoadDir(filepath.Join(r.root, name))
	if err != nil {
		return nil, err
	}
	r.loaded[name] = s
	return s, nil
}
