// Package scenario loads escape room content from disk: the manifest,
// narrative and prompt markdown, the field catalog and the dataset.
package scenario

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the scenario descriptor inside a scenario directory.
const ManifestFile = "scenario.yaml"

// DefaultUnlockPhrase is used by chat rooms that declare no unlock rule.
const DefaultUnlockPhrase = "[UNLOCK]"

// Kind selects how a room behaves and what opens the next one.
type Kind string

const (
	// KindIntro rooms open the next room on an explicit advance.
	KindIntro Kind = "intro"
	// KindChat rooms open the next room when their unlock rule holds.
	KindChat Kind = "chat"
	// KindDiscovery rooms collect confirmed fields into the ledger.
	KindDiscovery Kind = "discovery"
	// KindScoring rooms accumulate awarded points.
	KindScoring Kind = "scoring"
	// KindSubmission is the terminal room.
	KindSubmission Kind = "submission"
)

// FileType classifies a downloadable file.
type FileType string

// Download file types.
const (
	FileDataset       FileType = "dataset"
	FileFields        FileType = "fields"
	FileDocumentation FileType = "documentation"
	FileReference     FileType = "reference"
)

// UnlockRule is the exit condition of a chat room. Exactly one of Flag or
// Phrase is used; Flag wins when both are set.
type UnlockRule struct {
	Flag   string `yaml:"flag,omitempty" json:"flag,omitempty"`
	Phrase string `yaml:"phrase,omitempty" json:"phrase,omitempty"`
}

// Download is a file offered in a room. Filename is relative to data/.
type Download struct {
	Filename      string   `yaml:"filename" json:"filename"`
	Type          FileType `yaml:"type" json:"type"`
	Group         string   `yaml:"group" json:"group"`
	Description   string   `yaml:"description" json:"description"`
	MinDiscovered int      `yaml:"min_discovered,omitempty" json:"min_discovered,omitempty"`
}

// Room is one stage of the escape room.
type Room struct {
	Key          string     `yaml:"key" json:"key"`
	Title        string     `yaml:"title" json:"title"`
	Kind         Kind       `yaml:"kind" json:"kind"`
	Narrative    string     `yaml:"narrative" json:"-"`
	SystemPrompt string     `yaml:"system_prompt,omitempty" json:"-"`
	Unlock       UnlockRule `yaml:"unlock,omitempty" json:"unlock"`
	Downloads    []Download `yaml:"downloads,omitempty" json:"downloads,omitempty"`
}

// HasPersona returns true if learners chat in this room.
func (r Room) HasPersona() bool {
	switch r.Kind {
	case KindChat, KindDiscovery, KindScoring:
		return r.SystemPrompt != ""
	default:
		return false
	}
}

// Manifest is the parsed scenario.yaml.
type Manifest struct {
	Label              string   `yaml:"label"`
	Title              string   `yaml:"title"`
	Lore               string   `yaml:"lore"`
	DiscoveryThreshold int      `yaml:"discovery_threshold"`
	ScoreThreshold     int      `yaml:"score_threshold"`
	DisallowedColumns  []string `yaml:"disallowed_columns"`
	Rooms              []Room   `yaml:"rooms"`
}

var (
	errNoRooms        = errors.New("scenario declares no rooms")
	errDuplicateRoom  = errors.New("duplicate room key")
	errUnknownKind    = errors.New("unknown room kind")
	errKindRepeated   = errors.New("room kind may appear only once")
	errSubmissionLast = errors.New("submission room must be last")
	errBadDownload    = errors.New("invalid download")
)

// ParseManifest decodes and validates a manifest, applying defaults.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Lore == "" {
		m.Lore = "lore.md"
	}
	if m.DiscoveryThreshold <= 0 {
		m.DiscoveryThreshold = 10
	}
	if m.ScoreThreshold <= 0 {
		m.ScoreThreshold = 30
	}
	if m.DisallowedColumns == nil {
		m.DisallowedColumns = []string{"id", "date"}
	}
	for i := range m.Rooms {
		r := &m.Rooms[i]
		if r.Kind == KindChat && r.Unlock.Flag == "" && r.Unlock.Phrase == "" {
			r.Unlock.Phrase = DefaultUnlockPhrase
		}
	}
}

// Validate checks room structure and download declarations.
func (m *Manifest) Validate() error {
	if len(m.Rooms) == 0 {
		return errNoRooms
	}
	keys := make(map[string]bool, len(m.Rooms))
	seen := make(map[Kind]bool)
	for i, r := range m.Rooms {
		if r.Key == "" {
			return fmt.Errorf("room %d: key is required", i)
		}
		if keys[r.Key] {
			return fmt.Errorf("%w: %s", errDuplicateRoom, r.Key)
		}
		keys[r.Key] = true

		switch r.Kind {
		case KindIntro, KindChat:
		case KindDiscovery, KindScoring, KindSubmission:
			if seen[r.Kind] {
				return fmt.Errorf("%w: %s", errKindRepeated, r.Kind)
			}
			seen[r.Kind] = true
		default:
			return fmt.Errorf("%w: room %s has kind %q", errUnknownKind, r.Key, r.Kind)
		}
		if r.Kind == KindSubmission && i != len(m.Rooms)-1 {
			return errSubmissionLast
		}

		for _, d := range r.Downloads {
			if d.Filename == "" {
				return fmt.Errorf("%w: room %s has a download without filename", errBadDownload, r.Key)
			}
			switch d.Type {
			case FileDataset, FileFields, FileDocumentation, FileReference:
			default:
				return fmt.Errorf("%w: %s has type %q", errBadDownload, d.Filename, d.Type)
			}
		}
	}
	return nil
}

// RoomIndex returns the index of the room with the given key.
func (m *Manifest) RoomIndex(key string) (int, bool) {
	for i, r := range m.Rooms {
		if r.Key == key {
			return i, true
		}
	}
	return 0, false
}
