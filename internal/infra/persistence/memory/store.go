// Package memory provides an in-memory implementation of the warehouse
// persistence store used for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"harmonycore/internal/entitymodel"
	"harmonycore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type table struct {
	def    *entitymodel.Table
	rows   map[int64]domain.Row
	byKey  map[string]int64
	nextID int64
}

func newTable(def *entitymodel.Table) *table {
	return &table{def: def, rows: make(map[int64]domain.Row), byKey: make(map[string]int64)}
}

func (t *table) clone() *table {
	cp := &table{
		def:    t.def,
		rows:   make(map[int64]domain.Row, len(t.rows)),
		byKey:  make(map[string]int64, len(t.byKey)),
		nextID: t.nextID,
	}
	for id, r := range t.rows {
		cp.rows[id] = r
	}
	for k, id := range t.byKey {
		cp.byKey[k] = id
	}
	return cp
}

func (t *table) keyOf(values domain.Record) (string, bool) {
	cols := t.def.NaturalKeyColumns()
	vals := make([]any, len(cols))
	for i, c := range cols {
		v, ok := values[c]
		if !ok || v == nil {
			return "", false
		}
		vals[i] = v
	}
	return domain.KeyString(t.def.Name, vals), true
}

type memoryState struct {
	tables      map[string]*table
	audit       []domain.AuditEntry
	staged      []domain.StagedField
	nextAuditID int64
}

func (s *memoryState) shallow() *memoryState {
	cp := &memoryState{
		tables:      make(map[string]*table, len(s.tables)),
		audit:       slices.Clip(s.audit),
		staged:      slices.Clip(s.staged),
		nextAuditID: s.nextAuditID,
	}
	for name, t := range s.tables {
		cp.tables[name] = t
	}
	return cp
}

// Store provides an in-memory transactional store for the warehouse schema.
type Store struct {
	mu     sync.RWMutex
	schema *entitymodel.Schema
	state  *memoryState
	nowFn  func() time.Time
}

// NewStore constructs an empty in-memory store for schema.
func NewStore(schema *entitymodel.Schema) *Store {
	if schema == nil {
		schema = entitymodel.Default()
	}
	state := &memoryState{tables: make(map[string]*table)}
	for _, def := range schema.Tables() {
		state.tables[def.Name] = newTable(def)
	}
	return &Store{
		schema: schema,
		state:  state,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Schema returns the schema the store enforces.
func (s *Store) Schema() *entitymodel.Schema { return s.schema }

// SetNowFunc overrides the clock used for timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// RunInTransaction executes fn against a copy-on-write view of the store
// state. The state is replaced only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state:   s.state.shallow(),
		touched: make(map[string]bool),
		now:     s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	s.state = tx.state
	return domain.Result{Changes: tx.changes}, nil
}

// View executes fn against the committed state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(view{state: s.state})
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

type view struct {
	state *memoryState
}

func (v view) table(name string) (*table, error) {
	t, ok := v.state.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTable, name)
	}
	return t, nil
}

func (v view) FindByNaturalKey(tableName string, columns []string, values []any) (domain.Row, bool, error) {
	t, err := v.table(tableName)
	if err != nil {
		return domain.Row{}, false, err
	}
	if len(columns) != len(values) {
		return domain.Row{}, false, fmt.Errorf("%s: %d key columns, %d values", tableName, len(columns), len(values))
	}
	lookup := make(map[string]any, len(columns))
	for i, c := range columns {
		lookup[c] = values[i]
	}
	lookup, err = t.def.CoerceRow(lookup)
	if err != nil {
		return domain.Row{}, false, err
	}
	if slices.Equal(columns, t.def.NaturalKeyColumns()) {
		key, ok := t.keyOf(lookup)
		if !ok {
			return domain.Row{}, false, nil
		}
		id, ok := t.byKey[key]
		if !ok {
			return domain.Row{}, false, nil
		}
		return cloneRow(t.rows[id]), true, nil
	}
	for _, id := range sortedIDs(t) {
		row := t.rows[id]
		match := true
		for _, c := range columns {
			if !domain.ValuesEqual(row.Values[c], lookup[c]) {
				match = false
				break
			}
		}
		if match {
			return cloneRow(row), true, nil
		}
	}
	return domain.Row{}, false, nil
}

func (v view) GetRow(tableName string, id int64) (domain.Row, bool, error) {
	t, err := v.table(tableName)
	if err != nil {
		return domain.Row{}, false, err
	}
	row, ok := t.rows[id]
	if !ok {
		return domain.Row{}, false, nil
	}
	return cloneRow(row), true, nil
}

func (v view) ListRows(tableName string) ([]domain.Row, error) {
	t, err := v.table(tableName)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Row, 0, len(t.rows))
	for _, id := range sortedIDs(t) {
		out = append(out, cloneRow(t.rows[id]))
	}
	return out, nil
}

func (v view) ListAudit() ([]domain.AuditEntry, error) {
	return append([]domain.AuditEntry(nil), v.state.audit...), nil
}

func (v view) ListStaged() ([]domain.StagedField, error) {
	return append([]domain.StagedField(nil), v.state.staged...), nil
}

type transaction struct {
	state        *memoryState
	touched      map[string]bool
	stagedCopied bool
	changes      []domain.Change
	now          time.Time
}

func (tx *transaction) FindByNaturalKey(tableName string, columns []string, values []any) (domain.Row, bool, error) {
	return view{state: tx.state}.FindByNaturalKey(tableName, columns, values)
}

func (tx *transaction) GetRow(tableName string, id int64) (domain.Row, bool, error) {
	return view{state: tx.state}.GetRow(tableName, id)
}

func (tx *transaction) ListRows(tableName string) ([]domain.Row, error) {
	return view{state: tx.state}.ListRows(tableName)
}

func (tx *transaction) ListAudit() ([]domain.AuditEntry, error) {
	return view{state: tx.state}.ListAudit()
}

func (tx *transaction) ListStaged() ([]domain.StagedField, error) {
	return view{state: tx.state}.ListStaged()
}

// writable returns a private copy of the named table for this transaction.
func (tx *transaction) writable(name string) (*table, error) {
	t, ok := tx.state.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTable, name)
	}
	if !tx.touched[name] {
		t = t.clone()
		tx.state.tables[name] = t
		tx.touched[name] = true
	}
	return t, nil
}

func (tx *transaction) checkForeignKeys(t *table, values domain.Record) error {
	for _, fk := range t.def.ForeignKeys {
		id, ok := values[fk.Name].(int64)
		if !ok {
			continue
		}
		ref, ok := tx.state.tables[fk.RefTable]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownTable, fk.RefTable)
		}
		if _, ok := ref.rows[id]; !ok {
			return fmt.Errorf("%w: %s.%s references missing %s row %d", domain.ErrForeignKey, t.def.Name, fk.Name, fk.RefTable, id)
		}
	}
	return nil
}

func (tx *transaction) InsertRow(tableName string, values domain.Record) (domain.Row, error) {
	t, err := tx.writable(tableName)
	if err != nil {
		return domain.Row{}, err
	}
	coerced, err := t.def.CoerceRow(values)
	if err != nil {
		return domain.Row{}, err
	}
	if missing := t.def.MissingRequired(coerced); len(missing) > 0 {
		return domain.Row{}, fmt.Errorf("%s: missing required columns %v", tableName, missing)
	}
	if err := tx.checkForeignKeys(t, coerced); err != nil {
		return domain.Row{}, err
	}
	key, _ := t.keyOf(coerced)
	if _, dup := t.byKey[key]; dup {
		return domain.Row{}, fmt.Errorf("%w: %s", domain.ErrDuplicateKey, key)
	}
	t.nextID++
	row := domain.Row{ID: t.nextID, Values: coerced, CreatedAt: tx.now, UpdatedAt: tx.now}
	t.rows[row.ID] = row
	t.byKey[key] = row.ID
	tx.changes = append(tx.changes, domain.Change{Table: tableName, Action: domain.ActionInsert, RowID: row.ID, After: row.Values.Clone()})
	return cloneRow(row), nil
}

func (tx *transaction) UpdateRow(tableName string, id int64, values domain.Record) (domain.Row, error) {
	t, err := tx.writable(tableName)
	if err != nil {
		return domain.Row{}, err
	}
	current, ok := t.rows[id]
	if !ok {
		return domain.Row{}, fmt.Errorf("%w: %s %d", domain.ErrNotFound, tableName, id)
	}
	coerced, err := t.def.CoerceRow(values)
	if err != nil {
		return domain.Row{}, err
	}
	next := current.Values.Clone()
	for k, v := range coerced {
		next[k] = v
	}
	if err := tx.checkForeignKeys(t, next); err != nil {
		return domain.Row{}, err
	}
	oldKey, _ := t.keyOf(current.Values)
	newKey, _ := t.keyOf(next)
	if newKey != oldKey {
		if _, dup := t.byKey[newKey]; dup {
			return domain.Row{}, fmt.Errorf("%w: %s", domain.ErrDuplicateKey, newKey)
		}
		delete(t.byKey, oldKey)
		t.byKey[newKey] = id
	}
	updated := domain.Row{ID: id, Values: next, CreatedAt: current.CreatedAt, UpdatedAt: tx.now}
	t.rows[id] = updated
	tx.changes = append(tx.changes, domain.Change{
		Table:  tableName,
		Action: domain.ActionUpdate,
		RowID:  id,
		Before: current.Values.Clone(),
		After:  next.Clone(),
	})
	return cloneRow(updated), nil
}

func (tx *transaction) AppendAudit(entry domain.AuditEntry) (domain.AuditEntry, error) {
	tx.state.nextAuditID++
	entry.ID = tx.state.nextAuditID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = tx.now
	}
	tx.state.audit = append(tx.state.audit, entry)
	return entry, nil
}

func (tx *transaction) AppendStaged(field domain.StagedField) (domain.StagedField, error) {
	field.ID = int64(len(tx.state.staged) + 1)
	if field.Status == "" {
		field.Status = domain.StagingReceived
	}
	field.CreatedAt, field.UpdatedAt = tx.now, tx.now
	tx.state.staged = append(tx.state.staged, field)
	return field, nil
}

func (tx *transaction) SetStagedStatus(id int64, status domain.StagingStatus, reason string) error {
	if id < 1 || id > int64(len(tx.state.staged)) {
		return fmt.Errorf("%w: staged field %d", domain.ErrNotFound, id)
	}
	if !tx.stagedCopied {
		tx.state.staged = append([]domain.StagedField(nil), tx.state.staged...)
		tx.stagedCopied = true
	}
	f := &tx.state.staged[id-1]
	f.Status, f.Reason, f.UpdatedAt = status, reason, tx.now
	return nil
}

func sortedIDs(t *table) []int64 {
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func cloneRow(r domain.Row) domain.Row {
	r.Values = r.Values.Clone()
	return r
}
