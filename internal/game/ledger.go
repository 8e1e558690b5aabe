package game

import "sort"

// DiscoveryLedger holds the fields a learner has confirmed. Entries are
// only ever added; a repeated confirmation may refresh the description.
type DiscoveryLedger struct {
	Fields map[string]*string `json:"fields"`
}

// DiscoveredField is a ledger entry for display.
type DiscoveredField struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Add records name with an optional description. Returns true if the name
// was not yet in the ledger.
func (l *DiscoveryLedger) Add(name string, description *string) bool {
	if name == "" {
		return false
	}
	if l.Fields == nil {
		l.Fields = make(map[string]*string)
	}
	_, existed := l.Fields[name]
	l.Fields[name] = description
	return !existed
}

// Has returns true if name was discovered.
func (l *DiscoveryLedger) Has(name string) bool {
	_, ok := l.Fields[name]
	return ok
}

// Len returns the number of discovered fields.
func (l *DiscoveryLedger) Len() int {
	return len(l.Fields)
}

// Sorted returns the entries ordered by name.
func (l *DiscoveryLedger) Sorted() []DiscoveredField {
	out := make([]DiscoveredField, 0, len(l.Fields))
	for name, desc := range l.Fields {
		out = append(out, DiscoveredField{Name: name, Description: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
