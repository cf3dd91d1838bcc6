package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a row lookup by surrogate key misses.
	ErrNotFound = errors.New("row not found")
	// ErrDuplicateKey is returned when an insert collides with an existing natural key.
	ErrDuplicateKey = errors.New("duplicate natural key")
	// ErrForeignKey is returned when a row references a missing parent row.
	ErrForeignKey = errors.New("foreign key violation")
	// ErrUnknownTable is returned when a table is not part of the store's schema.
	ErrUnknownTable = errors.New("unknown table")
)

// TransactionView provides read-only access to stored rows and traces.
type TransactionView interface {
	FindByNaturalKey(table string, columns []string, values []any) (Row, bool, error)
	GetRow(table string, id int64) (Row, bool, error)
	ListRows(table string) ([]Row, error)
	ListAudit() ([]AuditEntry, error)
	ListStaged() ([]StagedField, error)
}

// Transaction exposes the write operations a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	TransactionView
	InsertRow(table string, values Record) (Row, error)
	UpdateRow(table string, id int64, values Record) (Row, error)
	AppendAudit(entry AuditEntry) (AuditEntry, error)
	AppendStaged(field StagedField) (StagedField, error)
	SetStagedStatus(id int64, status StagingStatus, reason string) error
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
