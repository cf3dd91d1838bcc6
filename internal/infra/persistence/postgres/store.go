// Package postgres provides the Postgres warehouse backend. The entity-model
// DDL is applied on startup and rows live in real relational tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"harmonycore/internal/entitymodel"
	"harmonycore/internal/entitymodel/sqlbundle"
	"harmonycore/internal/infra/persistence/sqlstore"
	"harmonycore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN keeps parity with OpenPersistentStore defaults.
	DefaultDSN = "postgres://localhost/harmonycore?sslmode=disable"

	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists the warehouse in Postgres.
type Store struct {
	*sqlstore.Store
}

// Dialect describes Postgres to the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                  "postgres",
		Placeholder:           func(n int) string { return fmt.Sprintf("$%d", n) },
		DDL:                   sqlbundle.Postgres,
		IsUniqueViolation:     hasCode(codeUniqueViolation),
		IsForeignKeyViolation: hasCode(codeForeignKeyViolation),
	}
}

func hasCode(code string) func(error) bool {
	return func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == code
	}
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to DefaultDSN) and applies the generated entity-model DDL.
func NewStore(dsn string, schema *entitymodel.Schema) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{Store: sqlstore.New(db, schema, Dialect())}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OverrideSQLOpen swaps the sql.Open implementation for tests and returns a restore func.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
