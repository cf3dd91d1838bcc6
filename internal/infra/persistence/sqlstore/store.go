// Package sqlstore implements the warehouse persistence contract over
// database/sql. Dialect-specific packages supply placeholders, DDL and
// constraint error detection.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"harmonycore/internal/entitymodel"
	"harmonycore/internal/entitymodel/sqlbundle"
	"harmonycore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

const timeLayout = time.RFC3339Nano

// Dialect captures the differences between SQL engines.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	DDL         func(*entitymodel.Schema) (string, error)
	// IsUniqueViolation and IsForeignKeyViolation classify driver errors.
	IsUniqueViolation     func(error) bool
	IsForeignKeyViolation func(error) bool
	// SerializeWrites runs write transactions one at a time.
	SerializeWrites bool
}

// Store is a database/sql backed persistent store.
type Store struct {
	db      *sql.DB
	schema  *entitymodel.Schema
	dialect Dialect
	nowFn   func() time.Time
	writeMu sync.Mutex
}

// New wraps an open database. Call Migrate before use on an empty database.
func New(db *sql.DB, schema *entitymodel.Schema, dialect Dialect) *Store {
	if schema == nil {
		schema = entitymodel.Default()
	}
	return &Store{
		db:      db,
		schema:  schema,
		dialect: dialect,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Migrate applies the dialect DDL. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	ddl, err := s.dialect.DDL(s.schema)
	if err != nil {
		return fmt.Errorf("render %s ddl: %w", s.dialect.Name, err)
	}
	return ApplyDDL(ctx, s.db, ddl)
}

// Execer is the subset of *sql.DB used to apply DDL.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ApplyDDL executes each statement of ddl in order.
func ApplyDDL(ctx context.Context, db Execer, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Schema returns the schema rows are validated against.
func (s *Store) Schema() *entitymodel.Schema { return s.schema }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction runs fn inside a database transaction, committing when fn
// returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (res domain.Result, err error) {
	if s.dialect.SerializeWrites {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	tx := &transaction{view: view{ctx: ctx, q: sqlTx, store: s}, now: s.nowFn()}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	if err := sqlTx.Commit(); err != nil {
		return domain.Result{}, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return domain.Result{Changes: tx.changes}, nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(view{ctx: ctx, q: sqlTx, store: s})
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type view struct {
	ctx   context.Context
	q     queryer
	store *Store
}

func (v view) table(name string) (*entitymodel.Table, error) {
	t, ok := v.store.schema.Table(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTable, name)
	}
	return t, nil
}

func (v view) ph(n int) string { return v.store.dialect.Placeholder(n) }

func selectList(t *entitymodel.Table) string {
	cols := []string{sqlbundle.Quote("id")}
	for _, c := range t.Stored() {
		cols = append(cols, sqlbundle.Quote(c.Name))
	}
	cols = append(cols, sqlbundle.Quote("created_at"), sqlbundle.Quote("updated_at"))
	return strings.Join(cols, ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(t *entitymodel.Table, sc scanner) (domain.Row, error) {
	stored := t.Stored()
	var id int64
	raw := make([]any, len(stored))
	var created, updated string
	dest := make([]any, 0, len(stored)+3)
	dest = append(dest, &id)
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	dest = append(dest, &created, &updated)
	if err := sc.Scan(dest...); err != nil {
		return domain.Row{}, err
	}
	values := make(domain.Record, len(stored))
	for i, c := range stored {
		v, err := c.Coerce(raw[i])
		if err != nil {
			return domain.Row{}, fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
		}
		if v != nil {
			values[c.Name] = v
		}
	}
	row := domain.Row{ID: id, Values: values}
	row.CreatedAt, _ = time.Parse(timeLayout, created)
	row.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return row, nil
}

func (v view) FindByNaturalKey(tableName string, columns []string, values []any) (domain.Row, bool, error) {
	t, err := v.table(tableName)
	if err != nil {
		return domain.Row{}, false, err
	}
	if len(columns) == 0 || len(columns) != len(values) {
		return domain.Row{}, false, fmt.Errorf("%s: %d key columns, %d values", tableName, len(columns), len(values))
	}
	where := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, name := range columns {
		col, ok := t.StoredColumn(name)
		if !ok {
			return domain.Row{}, false, fmt.Errorf("%s: unknown column %s", tableName, name)
		}
		cv, err := col.Coerce(values[i])
		if err != nil {
			return domain.Row{}, false, fmt.Errorf("%s.%s: %w", tableName, name, err)
		}
		if cv == nil {
			return domain.Row{}, false, nil
		}
		where[i] = sqlbundle.Quote(name) + " = " + v.ph(i+1)
		args[i] = cv
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT 1",
		selectList(t), sqlbundle.Quote(tableName), strings.Join(where, " AND "), sqlbundle.Quote("id"))
	row, err := scanRow(t, v.q.QueryRowContext(v.ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Row{}, false, nil
	}
	if err != nil {
		return domain.Row{}, false, fmt.Errorf("find %s: %w", tableName, err)
	}
	return row, true, nil
}

func (v view) GetRow(tableName string, id int64) (domain.Row, bool, error) {
	t, err := v.table(tableName)
	if err != nil {
		return domain.Row{}, false, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		selectList(t), sqlbundle.Quote(tableName), sqlbundle.Quote("id"), v.ph(1))
	row, err := scanRow(t, v.q.QueryRowContext(v.ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Row{}, false, nil
	}
	if err != nil {
		return domain.Row{}, false, fmt.Errorf("get %s %d: %w", tableName, id, err)
	}
	return row, true, nil
}

func (v view) ListRows(tableName string) ([]domain.Row, error) {
	t, err := v.table(tableName)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", selectList(t), sqlbundle.Quote(tableName), sqlbundle.Quote("id"))
	rows, err := v.q.QueryContext(v.ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Row
	for rows.Next() {
		row, err := scanRow(t, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", tableName, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const auditColumns = `"id", "batch_id", "actor", "entity", "table_name", "action", "status", "error_kind", "natural_key", "detail", "created_at"`

func (v view) ListAudit() ([]domain.AuditEntry, error) {
	rows, err := v.q.QueryContext(v.ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", auditColumns, sqlbundle.Quote(sqlbundle.AuditTable), sqlbundle.Quote("id")))
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var action, status, created string
		var kind, key, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Actor, &e.Entity, &e.TableName, &action, &status, &kind, &key, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.Action, e.Status = domain.Action(action), domain.AuditStatus(status)
		e.ErrorKind, e.NaturalKey, e.Detail = kind.String, key.String, detail.String
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

const stagedColumns = `"id", "batch_id", "source_file_id", "field_key", "value", "status", "reason", "created_at", "updated_at"`

func (v view) ListStaged() ([]domain.StagedField, error) {
	rows, err := v.q.QueryContext(v.ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", stagedColumns, sqlbundle.Quote(sqlbundle.StagingTable), sqlbundle.Quote("id")))
	if err != nil {
		return nil, fmt.Errorf("list staged: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.StagedField
	for rows.Next() {
		var f domain.StagedField
		var status, created, updated string
		var reason sql.NullString
		if err := rows.Scan(&f.ID, &f.BatchID, &f.SourceFileID, &f.FieldKey, &f.Value, &status, &reason, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan staged: %w", err)
		}
		f.Status, f.Reason = domain.StagingStatus(status), reason.String
		f.CreatedAt, _ = time.Parse(timeLayout, created)
		f.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, f)
	}
	return out, rows.Err()
}

type transaction struct {
	view
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) classify(err error, what string) error {
	switch {
	case tx.store.dialect.IsUniqueViolation != nil && tx.store.dialect.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s: %v", domain.ErrDuplicateKey, what, err)
	case tx.store.dialect.IsForeignKeyViolation != nil && tx.store.dialect.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %s: %v", domain.ErrForeignKey, what, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func (tx *transaction) InsertRow(tableName string, values domain.Record) (domain.Row, error) {
	t, err := tx.table(tableName)
	if err != nil {
		return domain.Row{}, err
	}
	coerced, err := t.CoerceRow(values)
	if err != nil {
		return domain.Row{}, err
	}
	if missing := t.MissingRequired(coerced); len(missing) > 0 {
		return domain.Row{}, fmt.Errorf("%s: missing required columns %v", tableName, missing)
	}
	stamp := tx.now.Format(timeLayout)
	var cols, marks []string
	var args []any
	for _, c := range t.Stored() {
		v, ok := coerced[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, sqlbundle.Quote(c.Name))
		args = append(args, v)
		marks = append(marks, tx.ph(len(args)))
	}
	cols = append(cols, sqlbundle.Quote("created_at"), sqlbundle.Quote("updated_at"))
	args = append(args, stamp, stamp)
	marks = append(marks, tx.ph(len(args)-1), tx.ph(len(args)))
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		sqlbundle.Quote(tableName), strings.Join(cols, ", "), strings.Join(marks, ", "), sqlbundle.Quote("id"))
	var id int64
	if err := tx.q.QueryRowContext(tx.ctx, query, args...).Scan(&id); err != nil {
		return domain.Row{}, tx.classify(err, "insert "+tableName)
	}
	row := domain.Row{ID: id, Values: coerced, CreatedAt: tx.now, UpdatedAt: tx.now}
	tx.changes = append(tx.changes, domain.Change{Table: tableName, Action: domain.ActionInsert, RowID: id, After: row.Values.Clone()})
	return row, nil
}

func (tx *transaction) UpdateRow(tableName string, id int64, values domain.Record) (domain.Row, error) {
	t, err := tx.table(tableName)
	if err != nil {
		return domain.Row{}, err
	}
	before, ok, err := tx.GetRow(tableName, id)
	if err != nil {
		return domain.Row{}, err
	}
	if !ok {
		return domain.Row{}, fmt.Errorf("%w: %s %d", domain.ErrNotFound, tableName, id)
	}
	coerced, err := t.CoerceRow(values)
	if err != nil {
		return domain.Row{}, err
	}
	var sets []string
	var args []any
	for _, c := range t.Stored() {
		v, ok := coerced[c.Name]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, sqlbundle.Quote(c.Name)+" = "+tx.ph(len(args)))
	}
	args = append(args, tx.now.Format(timeLayout))
	sets = append(sets, sqlbundle.Quote("updated_at")+" = "+tx.ph(len(args)))
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		sqlbundle.Quote(tableName), strings.Join(sets, ", "), sqlbundle.Quote("id"), tx.ph(len(args)))
	if _, err := tx.q.ExecContext(tx.ctx, query, args...); err != nil {
		return domain.Row{}, tx.classify(err, "update "+tableName)
	}
	after := before.Values.Clone()
	for k, v := range coerced {
		after[k] = v
	}
	row := domain.Row{ID: id, Values: after, CreatedAt: before.CreatedAt, UpdatedAt: tx.now}
	tx.changes = append(tx.changes, domain.Change{
		Table:  tableName,
		Action: domain.ActionUpdate,
		RowID:  id,
		Before: before.Values,
		After:  after.Clone(),
	})
	return row, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (tx *transaction) AppendAudit(e domain.AuditEntry) (domain.AuditEntry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = tx.now
	}
	marks := make([]string, 10)
	for i := range marks {
		marks[i] = tx.ph(i + 1)
	}
	query := fmt.Sprintf(`INSERT INTO %s ("batch_id", "actor", "entity", "table_name", "action", "status", "error_kind", "natural_key", "detail", "created_at") VALUES (%s) RETURNING "id"`,
		sqlbundle.Quote(sqlbundle.AuditTable), strings.Join(marks, ", "))
	err := tx.q.QueryRowContext(tx.ctx, query,
		e.BatchID, e.Actor, e.Entity, e.TableName, string(e.Action), string(e.Status),
		nullable(e.ErrorKind), nullable(e.NaturalKey), nullable(e.Detail), e.CreatedAt.UTC().Format(timeLayout),
	).Scan(&e.ID)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("append audit: %w", err)
	}
	return e, nil
}

func (tx *transaction) AppendStaged(f domain.StagedField) (domain.StagedField, error) {
	if f.Status == "" {
		f.Status = domain.StagingReceived
	}
	f.CreatedAt, f.UpdatedAt = tx.now, tx.now
	stamp := tx.now.Format(timeLayout)
	marks := make([]string, 8)
	for i := range marks {
		marks[i] = tx.ph(i + 1)
	}
	query := fmt.Sprintf(`INSERT INTO %s ("batch_id", "source_file_id", "field_key", "value", "status", "reason", "created_at", "updated_at") VALUES (%s) RETURNING "id"`,
		sqlbundle.Quote(sqlbundle.StagingTable), strings.Join(marks, ", "))
	err := tx.q.QueryRowContext(tx.ctx, query,
		f.BatchID, f.SourceFileID, f.FieldKey, f.Value, string(f.Status), nullable(f.Reason), stamp, stamp,
	).Scan(&f.ID)
	if err != nil {
		return domain.StagedField{}, fmt.Errorf("append staged: %w", err)
	}
	return f, nil
}

func (tx *transaction) SetStagedStatus(id int64, status domain.StagingStatus, reason string) error {
	query := fmt.Sprintf(`UPDATE %s SET "status" = %s, "reason" = %s, "updated_at" = %s WHERE "id" = %s`,
		sqlbundle.Quote(sqlbundle.StagingTable), tx.ph(1), tx.ph(2), tx.ph(3), tx.ph(4))
	res, err := tx.q.ExecContext(tx.ctx, query, string(status), nullable(reason), tx.now.Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("settle staged %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle staged %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: staged field %d", domain.ErrNotFound, id)
	}
	return nil
}
