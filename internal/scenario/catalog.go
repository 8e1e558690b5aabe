package scenario

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/escape-labs/internal/domain"
)

// Catalog is the ordered field vocabulary of a dataset.
type Catalog struct {
	fields []domain.FieldMeta
	index  map[string]int
}

// NewCatalog builds a catalog from fields in order. Later duplicates
// replace earlier entries in place.
func NewCatalog(fields []domain.FieldMeta) *Catalog {
	c := &Catalog{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if i, ok := c.index[f.Name]; ok {
			c.fields[i] = f
			continue
		}
		c.index[f.Name] = len(c.fields)
		c.fields = append(c.fields, f)
	}
	return c
}

// ParseCatalog reads a fields CSV with a header row naming the columns
// name, description, type, category and is_target. Rows without a name
// are skipped and is_target is lowercased, defaulting to "false".
func ParseCatalog(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return NewCatalog(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fields header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var fields []domain.FieldMeta
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read fields row: %w", err)
		}
		name := get(rec, "name")
		if name == "" {
			continue
		}
		isTarget := strings.ToLower(get(rec, "is_target"))
		if isTarget == "" {
			isTarget = "false"
		}
		fields = append(fields, domain.FieldMeta{
			Name:        name,
			Description: get(rec, "description"),
			Type:        get(rec, "type"),
			Category:    get(rec, "category"),
			IsTarget:    isTarget,
		})
	}
	return NewCatalog(fields), nil
}

// Names returns field names in catalog order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.fields))
	for i, f := range c.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the catalog entries.
func (c *Catalog) Fields() []domain.FieldMeta {
	if c == nil {
		return nil
	}
	out := make([]domain.FieldMeta, len(c.fields))
	copy(out, c.fields)
	return out
}

// Get returns the metadata for name.
func (c *Catalog) Get(name string) (domain.FieldMeta, bool) {
	if c == nil {
		return domain.FieldMeta{}, false
	}
	i, ok := c.index[name]
	if !ok {
		return domain.FieldMeta{}, false
	}
	return c.fields[i], true
}

// Description returns the description of a known field. Unknown fields
// return nil, known fields return their text even when it is empty.
func (c *Catalog) Description(name string) *string {
	f, ok := c.Get(name)
	if !ok {
		return nil
	}
	d := f.Description
	return &d
}

// Len returns the number of fields.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.fields)
}
