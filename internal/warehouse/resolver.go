// Package warehouse resolves enriched records to surrogate keys and writes
// them, creating referenced dimension rows first. It is the only component
// that writes warehouse rows.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"harmonycore/internal/catalogue"
	"harmonycore/internal/entitymodel"
	"harmonycore/internal/logging"
	"harmonycore/pkg/domain"
)

// State is the resolution state of a record.
type State string

const (
	StateResolvingDependencies State = "ResolvingDependencies"
	StateResolvingSelf         State = "ResolvingSelf"
	StateWriting               State = "Writing"
	StateCommitted             State = "Committed"
	StateFailed                State = "Failed"
)

// DefaultActor is recorded on audit entries when no actor is configured.
const DefaultActor = "harmonize"

// RowWrite is one committed insert or update.
type RowWrite struct {
	Table  string
	Key    string
	RowID  int64
	Action domain.Action
	// Dependency marks rows written to satisfy a foreign key.
	Dependency bool
}

// WriteResult describes the outcome of Apply. Action is ActionNone when the
// record's own row already held every value.
type WriteResult struct {
	State  State
	Entity string
	Table  string
	Key    string
	RowID  int64
	Action domain.Action
	Writes []RowWrite
}

// Changed reports whether the record's own row was inserted or updated.
func (r WriteResult) Changed() bool {
	return r.Action == domain.ActionInsert || r.Action == domain.ActionUpdate
}

// Resolver applies enriched records to a store.
type Resolver struct {
	store  domain.PersistentStore
	schema *entitymodel.Schema
	locks  *keyLocks
	actor  string
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithActor sets the actor recorded on audit entries.
func WithActor(actor string) Option {
	return func(r *Resolver) {
		if strings.TrimSpace(actor) != "" {
			r.actor = actor
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = logging.OrDiscard(l) } }

// NewResolver returns a resolver writing to store. A nil schema means the
// default warehouse schema.
func NewResolver(store domain.PersistentStore, schema *entitymodel.Schema, opts ...Option) *Resolver {
	if schema == nil {
		schema = entitymodel.Default()
	}
	r := &Resolver{
		store:  store,
		schema: schema,
		locks:  newKeyLocks(),
		actor:  DefaultActor,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply resolves rec's foreign keys, creating missing dimensions, and then
// inserts or merges the record's own row. Everything happens in one store
// transaction together with the audit entries, so a failed record leaves no
// partial rows behind.
func (r *Resolver) Apply(ctx context.Context, batchID string, rule catalogue.Rule, rec domain.EnrichedRecord) (WriteResult, error) {
	res := WriteResult{State: StateResolvingDependencies, Entity: rule.Entity, Action: domain.ActionNone}
	if rule.Table == nil {
		res.State = StateFailed
		return res, &WriteError{Kind: KindInvalidRecord, State: StateResolvingDependencies, Err: errors.New("rule has no target table")}
	}
	res.Table = rule.Table.Name
	table, ok := r.schema.Table(rule.Table.Name)
	if !ok {
		res.State = StateFailed
		return res, &WriteError{Kind: KindInvalidRecord, State: StateResolvingDependencies, Table: rule.Table.Name, Err: domain.ErrUnknownTable}
	}
	root, err := r.plan(table, rec.Attributes, nil, false)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	res.Key = root.key
	if err := ctx.Err(); err != nil {
		res.State = StateFailed
		return res, err
	}

	release := r.locks.acquire(root.lockKeys(nil))
	defer release()

	var out WriteResult
	for attempt := 1; ; attempt++ {
		out, err = r.commit(ctx, batchID, rule.Entity, root)
		if err == nil || attempt == 2 || !errors.Is(err, domain.ErrDuplicateKey) {
			break
		}
		r.logger.Debug("natural key created concurrently, retrying", slog.String(logging.KeyTable, table.Name), slog.String("key", root.key))
	}
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	out.Entity, out.Table, out.Key, out.State = rule.Entity, table.Name, root.key, StateCommitted
	if len(out.Writes) > 0 {
		r.logger.Debug("record committed",
			slog.String(logging.KeyBatch, batchID),
			slog.String(logging.KeyEntity, rule.Entity),
			slog.String("key", root.key),
			slog.String("action", string(out.Action)),
			slog.Int("writes", len(out.Writes)))
	}
	return out, nil
}

// node is one row the plan resolves. Dependencies are resolved before the
// node itself.
type node struct {
	table      *entitymodel.Table
	attrs      domain.Record
	key        string
	deps       []edge
	dependency bool
}

type edge struct {
	fk   entitymodel.ForeignKey
	node *node
}

func (n *node) lockKeys(acc []string) []string {
	for _, e := range n.deps {
		acc = e.node.lockKeys(acc)
	}
	return append(acc, n.key)
}

// plan walks the foreign keys of table depth first. A table that appears
// twice on the current path is a cycle.
func (r *Resolver) plan(table *entitymodel.Table, attrs domain.Record, path []string, dependency bool) (*node, error) {
	path = append(slices.Clip(path), table.Name)
	coerced, err := coerceAttributes(table, attrs)
	if err != nil {
		return nil, &WriteError{Kind: KindInvalidRecord, State: StateResolvingDependencies, Table: table.Name, Err: err}
	}
	n := &node{table: table, attrs: coerced, dependency: dependency}
	for _, fk := range table.ForeignKeys {
		if slices.Contains(path, fk.RefTable) {
			return nil, &WriteError{
				Kind:  KindCyclicDependency,
				State: StateResolvingDependencies,
				Table: table.Name,
				Err:   fmt.Errorf("%s via %s", strings.Join(append(path, fk.RefTable), " -> "), fk.Name),
			}
		}
		ref, ok := r.schema.Table(fk.RefTable)
		if !ok {
			return nil, &WriteError{Kind: KindInvalidRecord, State: StateResolvingDependencies, Table: table.Name, Err: fmt.Errorf("%w: %s", domain.ErrUnknownTable, fk.RefTable)}
		}
		refAttrs := make(domain.Record, len(fk.Columns))
		for i, col := range fk.Columns {
			v := coerced[col]
			if v == nil {
				return nil, &WriteError{Kind: KindMissingReference, State: StateResolvingDependencies, Table: table.Name, Column: col, Err: fmt.Errorf("foreign key %s needs %s", fk.Name, col)}
			}
			refAttrs[ref.NaturalKey[i]] = v
		}
		child, err := r.plan(ref, refAttrs, path, true)
		if err != nil {
			return nil, err
		}
		n.deps = append(n.deps, edge{fk: fk, node: child})
	}
	n.key = naturalKey(table, coerced)
	return n, nil
}

func coerceAttributes(table *entitymodel.Table, attrs domain.Record) (domain.Record, error) {
	out := make(domain.Record, len(attrs))
	for name, v := range attrs {
		col, ok := table.Column(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %s", name)
		}
		cv, err := col.Coerce(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if cv != nil {
			out[name] = cv
		}
	}
	return out, nil
}

// naturalKey renders the identity of a row from its attribute values. Fact
// and link rows are identified by the natural keys they reference.
func naturalKey(table *entitymodel.Table, attrs domain.Record) string {
	var cols []string
	if table.Kind == entitymodel.KindDimension {
		cols = table.NaturalKey
	} else {
		for _, fk := range table.ForeignKeys {
			cols = append(cols, fk.Columns...)
		}
	}
	return domain.KeyString(table.Name, pick(attrs, cols))
}

func pick(values domain.Record, cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = values[c]
	}
	return out
}

func (r *Resolver) commit(ctx context.Context, batchID, entity string, root *node) (WriteResult, error) {
	var ex *execution
	_, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ex = &execution{tx: tx}
		id, action, err := ex.resolve(root)
		if err != nil {
			return err
		}
		ex.rowID, ex.action = id, action
		for _, w := range ex.writes {
			entry := domain.AuditEntry{
				BatchID:    batchID,
				Actor:      r.actor,
				Entity:     entity,
				TableName:  w.Table,
				Action:     w.Action,
				Status:     domain.AuditCommitted,
				NaturalKey: w.Key,
			}
			if w.Dependency {
				entry.Detail = "dependency"
			}
			if _, err := tx.AppendAudit(entry); err != nil {
				return &WriteError{Kind: KindStorage, State: StateWriting, Table: w.Table, Key: w.Key, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := AsWriteError(err); !ok {
			err = &WriteError{Kind: KindStorage, State: StateWriting, Table: root.table.Name, Key: root.key, Err: err}
		}
		return WriteResult{}, err
	}
	return WriteResult{RowID: ex.rowID, Action: ex.action, Writes: ex.writes}, nil
}

// execution carries one transaction's progress.
type execution struct {
	tx     domain.Transaction
	writes []RowWrite
	rowID  int64
	action domain.Action
}

func (ex *execution) fail(n *node, kind ErrorKind, own State, err error) *WriteError {
	state := own
	if n.dependency {
		state = StateResolvingDependencies
	}
	return &WriteError{Kind: kind, State: state, Table: n.table.Name, Key: n.key, Err: err}
}

// resolve returns the row id for n, creating it when absent. A dimension's
// natural key does not depend on its references, so an existing dimension
// is found first and only the references it still lacks are resolved.
func (ex *execution) resolve(n *node) (int64, domain.Action, error) {
	values := n.attrs.Clone()
	cols := n.table.NaturalKeyColumns()
	var (
		row   domain.Row
		found bool
	)
	if n.table.Kind == entitymodel.KindDimension {
		var err error
		if row, found, err = ex.find(n, cols, values); err != nil {
			return 0, "", err
		}
	}
	for _, e := range n.deps {
		if found && !domain.IsNull(row.Values[e.fk.Name]) {
			continue
		}
		id, _, err := ex.resolve(e.node)
		if err != nil {
			return 0, "", err
		}
		values[e.fk.Name] = id
	}
	if n.table.Kind != entitymodel.KindDimension {
		var err error
		if row, found, err = ex.find(n, cols, values); err != nil {
			return 0, "", err
		}
	}
	if found {
		return ex.merge(n, row, values)
	}
	if n.dependency && !n.table.CanStub() {
		return 0, "", ex.fail(n, KindMissingDependency, StateResolvingDependencies,
			fmt.Errorf("%s %s must exist before dependents are written", n.table.Name, n.key))
	}
	inserted, err := ex.tx.InsertRow(n.table.Name, values)
	if err != nil {
		return 0, "", ex.fail(n, KindStorage, StateWriting, err)
	}
	ex.record(n, inserted.ID, domain.ActionInsert)
	return inserted.ID, domain.ActionInsert, nil
}

func (ex *execution) find(n *node, cols []string, values domain.Record) (domain.Row, bool, error) {
	row, found, err := ex.tx.FindByNaturalKey(n.table.Name, cols, pick(values, cols))
	if err != nil {
		return domain.Row{}, false, ex.fail(n, KindStorage, StateResolvingSelf, err)
	}
	return row, found, nil
}

// merge applies the no-clobber policy to an existing row. Dimensions only
// gain values; fact and link rows conflict when a stored value differs.
func (ex *execution) merge(n *node, row domain.Row, values domain.Record) (int64, domain.Action, error) {
	if n.table.Kind != entitymodel.KindDimension {
		if col, conflict := firstConflict(row.Values, n.attrs); conflict {
			werr := ex.fail(n, KindConflictingLink, StateWriting,
				fmt.Errorf("stored %v, incoming %v", row.Values[col], n.attrs[col]))
			werr.Column = col
			return 0, "", werr
		}
	}
	patch := fillNulls(row.Values, values)
	if len(patch) == 0 {
		return row.ID, domain.ActionNone, nil
	}
	if _, err := ex.tx.UpdateRow(n.table.Name, row.ID, patch); err != nil {
		return 0, "", ex.fail(n, KindStorage, StateWriting, err)
	}
	ex.record(n, row.ID, domain.ActionUpdate)
	return row.ID, domain.ActionUpdate, nil
}

func (ex *execution) record(n *node, id int64, action domain.Action) {
	ex.writes = append(ex.writes, RowWrite{Table: n.table.Name, Key: n.key, RowID: id, Action: action, Dependency: n.dependency})
}
