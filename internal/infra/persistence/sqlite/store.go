// Package sqlite provides the embedded SQLite warehouse backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"harmonycore/internal/entitymodel"
	"harmonycore/internal/entitymodel/sqlbundle"
	"harmonycore/internal/infra/persistence/sqlstore"
	"harmonycore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "harmonycore.db"

// Store persists the warehouse to a single SQLite file.
type Store struct {
	*sqlstore.Store
	path string
}

// Dialect describes SQLite to the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                  "sqlite",
		Placeholder:           func(int) string { return "?" },
		DDL:                   sqlbundle.SQLite,
		IsUniqueViolation:     constraint(sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE constraint failed"),
		IsForeignKeyViolation: constraint(sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY constraint failed"),
		SerializeWrites:       true,
	}
}

// constraint matches an extended SQLite constraint code, falling back to
// the message when only the primary code is reported.
func constraint(code int, marker string) func(error) bool {
	return func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		if se.Code() == code {
			return true
		}
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), marker)
	}
}

// DSN builds the connection string for path with foreign keys enforced.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// NewStore opens (creating if needed) the SQLite database at path and
// applies the warehouse DDL.
func NewStore(path string, schema *entitymodel.Schema) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{Store: sqlstore.New(db, schema, Dialect()), path: path}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
