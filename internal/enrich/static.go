package enrich

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"harmonycore/pkg/domain"
)

// Static serves lookups from a fixed identifier table.
type Static struct {
	family Family
	mu     sync.RWMutex
	data   map[string]domain.Record
}

// NewStatic builds a provider over the supplied records.
func NewStatic(family Family, data map[string]domain.Record) *Static {
	s := &Static{family: family, data: make(map[string]domain.Record, len(data))}
	for id, rec := range data {
		s.data[id] = rec.Clone()
	}
	return s
}

// Put adds or replaces an identifier.
func (s *Static) Put(id string, rec domain.Record) {
	s.mu.Lock()
	s.data[id] = rec.Clone()
	s.mu.Unlock()
}

// Lookup returns a copy of the stored attributes or a not-found LookupError.
func (s *Static) Lookup(ctx context.Context, id string) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rec, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &LookupError{Family: s.family, ID: id, Err: ErrNotFound}
	}
	return rec.Clone(), nil
}

// Len returns the number of identifiers served.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// fixtureFile is the on-disk layout: family -> identifier -> attributes.
type fixtureFile map[Family]map[string]map[string]any

// LoadFixtures reads a YAML fixture file and returns a Directory with one
// Static provider per family present in the file.
func LoadFixtures(path string) (Directory, error) {
	// #nosec G304 -- fixture path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes fixture YAML.
func ParseFixtures(data []byte) (Directory, error) {
	var doc fixtureFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	known := make(map[Family]bool)
	for _, f := range Families() {
		known[f] = true
	}
	dir := make(Directory, len(doc))
	for family, entries := range doc {
		if !known[family] {
			return nil, fmt.Errorf("parse fixtures: unknown family %q", family)
		}
		records := make(map[string]domain.Record, len(entries))
		for id, attrs := range entries {
			records[id] = domain.Record(attrs)
		}
		dir[family] = NewStatic(family, records)
	}
	return dir, nil
}
