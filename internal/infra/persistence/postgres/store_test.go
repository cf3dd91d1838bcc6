package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"harmonycore/internal/entitymodel"
	"harmonycore/internal/entitymodel/sqlbundle"
	"harmonycore/internal/infra/persistence/postgres/testutil"
	"harmonycore/internal/infra/persistence/storetest"
	"harmonycore/pkg/domain"
)

func TestNewStoreAppliesGeneratedDDL(t *testing.T) {
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != "pgx" || dsn != DefaultDSN {
			t.Fatalf("unexpected open(%q, %q)", driverName, dsn)
		}
		return db, nil
	})
	defer restore()

	store, err := NewStore("", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	ddl, err := sqlbundle.Postgres(entitymodel.Default())
	if err != nil {
		t.Fatalf("render ddl: %v", err)
	}
	want := sqlbundle.SplitStatements(ddl)
	got := conn.Statements()
	if len(got) != len(want) {
		t.Fatalf("expected %d DDL statements, got %d", len(want), len(got))
	}
	for i := range want {
		if strings.TrimSpace(got[i]) != strings.TrimSpace(want[i]) {
			t.Fatalf("statement %d mismatch:\nwant: %s\ngot:  %s", i, want[i], got[i])
		}
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("postgres://x", nil); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestNewStoreDDLFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailOn = 2
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("postgres://x", nil); err == nil || !strings.Contains(err.Error(), "execute ddl") {
		t.Fatalf("expected ddl error, got %v", err)
	}
}

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") })
	defer restore()
	if _, err := NewStore("postgres://x", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestDialectClassifiesPgErrors(t *testing.T) {
	d := Dialect()
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})
	if !d.IsUniqueViolation(unique) || d.IsUniqueViolation(fk) {
		t.Fatalf("unique violation misclassified")
	}
	if !d.IsForeignKeyViolation(fk) || d.IsForeignKeyViolation(unique) {
		t.Fatalf("foreign key violation misclassified")
	}
	if d.IsUniqueViolation(errors.New("plain")) {
		t.Fatalf("plain error classified as violation")
	}
	if got := d.Placeholder(3); got != "$3" {
		t.Fatalf("placeholder = %q", got)
	}
}

// TestPostgresContract runs against a live server when
// HARMONYCORE_TEST_POSTGRES_DSN points at a disposable database.
func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("HARMONYCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARMONYCORE_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) domain.PersistentStore {
		store, err := NewStore(dsn, nil)
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		var tables []string
		for _, tbl := range entitymodel.Default().Tables() {
			tables = append(tables, sqlbundle.Quote(tbl.Name))
		}
		tables = append(tables, sqlbundle.Quote(sqlbundle.AuditTable), sqlbundle.Quote(sqlbundle.StagingTable))
		if _, err := store.DB().Exec("TRUNCATE TABLE " + strings.Join(tables, ", ") + " RESTART IDENTITY CASCADE"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
