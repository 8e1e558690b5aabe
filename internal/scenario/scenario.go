package scenario

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/containerd/errdefs"
)

const (
	dataDir    = "data"
	fieldsFile = "fields.csv"
)

// ErrDatasetMissing is returned when the scenario ships no dataset CSV.
var ErrDatasetMissing = fmt.Errorf("dataset not available: %w", errdefs.ErrNotFound)

// Scenario is a loaded scenario directory.
type Scenario struct {
	Name     string
	Manifest *Manifest
	Catalog  *Catalog

	dir  string
	fsys fs.FS
	lib  *Library
}

// LoadDir loads the scenario rooted at dir.
func LoadDir(dir string) (*Scenario, error) {
	s, err := Load(os.DirFS(dir), filepath.Base(dir))
	if err != nil {
		return nil, err
	}
	s.dir = dir
	return s, nil
}

// Load reads the manifest and field catalog from fsys. A missing catalog
// yields an empty one.
func Load(fsys fs.FS, name string) (*Scenario, error) {
	f, err := fsys.Open(ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("open %s for scenario %s: %w", ManifestFile, name, err)
	}
	m, err := ParseManifest(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	if m.Label == "" {
		m.Label = name
	}

	catalog := NewCatalog(nil)
	if cf, err := fsys.Open(path.Join(dataDir, fieldsFile)); err == nil {
		catalog, err = ParseCatalog(cf)
		_ = cf.Close()
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
	}

	return &Scenario{
		Name:     name,
		Manifest: m,
		Catalog:  catalog,
		fsys:     fsys,
		lib:      NewLibrary(fsys),
	}, nil
}

// Dir returns the on-disk directory, or "" for scenarios loaded from an
// in-memory filesystem.
func (s *Scenario) Dir() string {
	return s.dir
}

// Library returns the scenario's cached text reader.
func (s *Scenario) Library() *Library {
	return s.lib
}

// Label returns the human-readable scenario name.
func (s *Scenario) Label() string {
	return s.Manifest.Label
}

// RoomCount returns the number of rooms.
func (s *Scenario) RoomCount() int {
	return len(s.Manifest.Rooms)
}

// Room returns room i.
func (s *Scenario) Room(i int) (Room, bool) {
	if i < 0 || i >= len(s.Manifest.Rooms) {
		return Room{}, false
	}
	return s.Manifest.Rooms[i], true
}

// Lore returns the shared story text appended to every persona prompt.
func (s *Scenario) Lore() string {
	return s.lib.Text(s.Manifest.Lore)
}

// Narrative returns the markdown shown at the top of room i.
func (s *Scenario) Narrative(i int) string {
	r, ok := s.Room(i)
	if !ok {
		return ""
	}
	return s.lib.Text(r.Narrative)
}

// SystemPrompt returns the persona instruction for room i: the room's
// system markdown followed by a blank line and the lore.
func (s *Scenario) SystemPrompt(i int) string {
	r, ok := s.Room(i)
	if !ok || r.SystemPrompt == "" {
		return ""
	}
	return s.lib.Text(r.SystemPrompt) + "\n\n" + s.Lore()
}

// DatasetFile returns the dataset path relative to the scenario: the first
// CSV in data/, by name, that is not the fields catalog.
func (s *Scenario) DatasetFile() (string, error) {
	entries, err := fs.ReadDir(s.fsys, dataDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrDatasetMissing
		}
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(path.Ext(name), ".csv") || strings.EqualFold(name, fieldsFile) {
			continue
		}
		return path.Join(dataDir, name), nil
	}
	return "", ErrDatasetMissing
}

// Columns returns the dataset header in file order.
func (s *Scenario) Columns() ([]string, error) {
	name, err := s.DatasetFile()
	if err != nil {
		return nil, err
	}
	f, err := s.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrDatasetMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	cols := make([]string, 0, len(header))
	for _, h := range header {
		cols = append(cols, strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	return cols, nil
}

// OpenDownload opens a declared download of room i by filename.
func (s *Scenario) OpenDownload(i int, filename string) (Download, fs.File, error) {
	r, ok := s.Room(i)
	if !ok {
		return Download{}, nil, fmt.Errorf("room %d: %w", i, errdefs.ErrNotFound)
	}
	for _, d := range r.Downloads {
		if d.Filename != filename {
			continue
		}
		f, err := s.fsys.Open(path.Join(dataDir, d.Filename))
		if err != nil {
			return d, nil, fmt.Errorf("download %s: %w", filename, errdefs.ErrNotFound)
		}
		return d, f, nil
	}
	return Download{}, nil, fmt.Errorf("download %s: %w", filename, errdefs.ErrNotFound)
}

// DownloadExists reports whether a declared download is present on disk.
func (s *Scenario) DownloadExists(d Download) bool {
	_, err := fs.Stat(s.fsys, path.Join(dataDir, d.Filename))
	return err == nil
}

// Check validates that every file the manifest references can be read.
// It returns one error per problem.
func (s *Scenario) Check() []error {
	var problems []error
	need := func(label, name string) {
		if name == "" {
			return
		}
		if _, err := fs.Stat(s.fsys, name); err != nil {
			problems = append(problems, fmt.Errorf("%s %s: %w", label, name, err))
		}
	}
	need("lore", s.Manifest.Lore)
	for _, r := range s.Manifest.Rooms {
		need("room "+r.Key+" narrative", r.Narrative)
		need("room "+r.Key+" system prompt", r.SystemPrompt)
		for _, d := range r.Downloads {
			need("room "+r.Key+" download", path.Join(dataDir, d.Filename))
		}
		if (r.Kind == KindChat || r.Kind == KindDiscovery || r.Kind == KindScoring) && r.SystemPrompt == "" {
			problems = append(problems, fmt.Errorf("room %s: chat room without system prompt", r.Key))
		}
	}
	if s.Catalog.Len() < s.Manifest.DiscoveryThreshold {
		problems = append(problems, fmt.Errorf("catalog has %d fields, discovery needs %d", s.Catalog.Len(), s.Manifest.DiscoveryThreshold))
	}
	if _, err := s.Columns(); err != nil {
		problems = append(problems, err)
	}
	return problems
}
