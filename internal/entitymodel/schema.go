// Package entitymodel describes the warehouse's relational schema: tables,
// natural keys and the foreign-key graph that orders writes.
package entitymodel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ColumnType is the storage class of a column.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeInteger ColumnType = "integer"
	TypeReal    ColumnType = "real"
)

// TableKind distinguishes reference entities from rows that relate them.
type TableKind string

const (
	KindDimension TableKind = "dimension"
	KindFact      TableKind = "fact"
	KindLink      TableKind = "link"
)

// OnDelete is the referential action declared for a foreign key.
type OnDelete string

const (
	Restrict OnDelete = "RESTRICT"
	Cascade  OnDelete = "CASCADE"
)

// Column is an attribute column of a table.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// ForeignKey binds record columns to the natural key of another table.
// Name is the surrogate column stored on the dependent row.
type ForeignKey struct {
	Name     string
	Columns  []string
	RefTable string
	OnDelete OnDelete
}

// Table is a warehouse table definition.
type Table struct {
	Name        string
	Kind        TableKind
	Columns     []Column
	NaturalKey  []string
	ForeignKeys []ForeignKey
}

// Column returns the named attribute column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Required returns the names of non-nullable attribute columns in declaration order.
func (t *Table) Required() []string {
	var out []string
	for _, c := range t.Columns {
		if !c.Nullable {
			out = append(out, c.Name)
		}
	}
	return out
}

// NaturalKeyColumns returns the stored columns that identify a row. For
// dimensions these are attribute columns; fact and link rows are identified
// by their foreign-key surrogate columns.
func (t *Table) NaturalKeyColumns() []string {
	if t.Kind == KindDimension {
		return append([]string(nil), t.NaturalKey...)
	}
	out := make([]string, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		out = append(out, fk.Name)
	}
	return out
}

// Stored returns every column persisted for a row besides id and the
// timestamps: attribute columns followed by foreign-key surrogate columns.
func (t *Table) Stored() []Column {
	out := append([]Column(nil), t.Columns...)
	for _, fk := range t.ForeignKeys {
		out = append(out, Column{Name: fk.Name, Type: TypeInteger})
	}
	return out
}

// StoredColumn returns the persisted column with the given name.
func (t *Table) StoredColumn(name string) (Column, bool) {
	if c, ok := t.Column(name); ok {
		return c, true
	}
	for _, fk := range t.ForeignKeys {
		if fk.Name == name {
			return Column{Name: fk.Name, Type: TypeInteger}, true
		}
	}
	return Column{}, false
}

// CanStub reports whether a row can be created from its natural key alone.
func (t *Table) CanStub() bool {
	if t.Kind != KindDimension {
		return false
	}
	nk := make(map[string]struct{}, len(t.NaturalKey))
	for _, c := range t.NaturalKey {
		nk[c] = struct{}{}
	}
	for _, c := range t.Required() {
		if _, ok := nk[c]; !ok {
			return false
		}
	}
	return true
}

// ErrCycle is returned when the foreign-key graph contains a cycle.
var ErrCycle = errors.New("cyclic table dependency")

// Schema is an immutable set of tables.
type Schema struct {
	tables []*Table
	byName map[string]*Table
}

// NewSchema validates the table definitions and builds a schema. Cycles are
// permitted here and reported by DependencyOrder.
func NewSchema(tables ...Table) (*Schema, error) {
	s := &Schema{byName: make(map[string]*Table, len(tables))}
	for i := range tables {
		t := tables[i]
		if t.Name == "" {
			return nil, fmt.Errorf("table %d: empty name", i)
		}
		if _, dup := s.byName[t.Name]; dup {
			return nil, fmt.Errorf("table %s declared twice", t.Name)
		}
		tp := &t
		s.tables = append(s.tables, tp)
		s.byName[t.Name] = tp
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error, for package-level defaults.
func MustSchema(tables ...Table) *Schema {
	s, err := NewSchema(tables...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) validate() error {
	var errs []error
	for _, t := range s.tables {
		seen := make(map[string]struct{}, len(t.Columns))
		for _, c := range t.Columns {
			if _, dup := seen[c.Name]; dup {
				errs = append(errs, fmt.Errorf("%s: duplicate column %s", t.Name, c.Name))
			}
			seen[c.Name] = struct{}{}
		}
		if t.Kind == KindDimension && len(t.NaturalKey) == 0 {
			errs = append(errs, fmt.Errorf("%s: dimension without natural key", t.Name))
		}
		if t.Kind != KindDimension && len(t.ForeignKeys) < 2 {
			errs = append(errs, fmt.Errorf("%s: %s table must reference at least two dimensions", t.Name, t.Kind))
		}
		for _, c := range t.NaturalKey {
			col, ok := t.Column(c)
			if !ok {
				errs = append(errs, fmt.Errorf("%s: natural key column %s not declared", t.Name, c))
			} else if col.Nullable {
				errs = append(errs, fmt.Errorf("%s: natural key column %s is nullable", t.Name, c))
			}
		}
		for _, fk := range t.ForeignKeys {
			if _, clash := seen[fk.Name]; clash {
				errs = append(errs, fmt.Errorf("%s: foreign key %s shadows a column", t.Name, fk.Name))
			}
			ref, ok := s.byName[fk.RefTable]
			if !ok {
				errs = append(errs, fmt.Errorf("%s: foreign key %s references unknown table %s", t.Name, fk.Name, fk.RefTable))
				continue
			}
			if ref.Kind != KindDimension {
				errs = append(errs, fmt.Errorf("%s: foreign key %s must reference a dimension", t.Name, fk.Name))
				continue
			}
			if len(fk.Columns) != len(ref.NaturalKey) {
				errs = append(errs, fmt.Errorf("%s: foreign key %s has %d columns, %s natural key has %d", t.Name, fk.Name, len(fk.Columns), ref.Name, len(ref.NaturalKey)))
				continue
			}
			for i, c := range fk.Columns {
				col, ok := t.Column(c)
				if !ok {
					errs = append(errs, fmt.Errorf("%s: foreign key %s column %s not declared", t.Name, fk.Name, c))
					continue
				}
				if col.Nullable {
					errs = append(errs, fmt.Errorf("%s: foreign key %s column %s is nullable", t.Name, fk.Name, c))
				}
				refCol, _ := ref.Column(ref.NaturalKey[i])
				if refCol.Type != col.Type {
					errs = append(errs, fmt.Errorf("%s: foreign key %s column %s is %s, %s.%s is %s", t.Name, fk.Name, c, col.Type, ref.Name, refCol.Name, refCol.Type))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Tables returns tables in declaration order.
func (s *Schema) Tables() []*Table {
	return append([]*Table(nil), s.tables...)
}

// DependencyOrder returns table names so that every referenced table precedes
// its dependents. Ties keep declaration order.
func (s *Schema) DependencyOrder() ([]string, error) {
	indegree := make(map[string]int, len(s.tables))
	dependents := make(map[string][]string, len(s.tables))
	position := make(map[string]int, len(s.tables))
	for i, t := range s.tables {
		position[t.Name] = i
		indegree[t.Name] = 0
		refs := make(map[string]struct{})
		for _, fk := range t.ForeignKeys {
			if _, dup := refs[fk.RefTable]; dup {
				continue
			}
			refs[fk.RefTable] = struct{}{}
			indegree[t.Name]++
			dependents[fk.RefTable] = append(dependents[fk.RefTable], t.Name)
		}
	}
	var ready []string
	for _, t := range s.tables {
		if indegree[t.Name] == 0 {
			ready = append(ready, t.Name)
		}
	}
	order := make([]string, 0, len(s.tables))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(order) != len(s.tables) {
		var stuck []string
		for _, t := range s.tables {
			if indegree[t.Name] > 0 {
				stuck = append(stuck, t.Name)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

// Depth returns the length of the longest foreign-key path from the table to
// a table without references. Tables on a cycle report ErrCycle.
func (s *Schema) Depth(name string) (int, error) {
	memo := make(map[string]int)
	return s.depth(name, map[string]bool{}, memo)
}

func (s *Schema) depth(name string, onPath map[string]bool, memo map[string]int) (int, error) {
	if d, ok := memo[name]; ok {
		return d, nil
	}
	if onPath[name] {
		return 0, fmt.Errorf("%w: %s", ErrCycle, name)
	}
	t, ok := s.byName[name]
	if !ok {
		return 0, fmt.Errorf("unknown table %s", name)
	}
	onPath[name] = true
	defer delete(onPath, name)
	d := 0
	for _, fk := range t.ForeignKeys {
		rd, err := s.depth(fk.RefTable, onPath, memo)
		if err != nil {
			return 0, err
		}
		if rd+1 > d {
			d = rd + 1
		}
	}
	memo[name] = d
	return d, nil
}
