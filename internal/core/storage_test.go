package core

import (
	"context"
	"path/filepath"
	"testing"

	"harmonycore/internal/config"
	"harmonycore/internal/entitymodel"
	"harmonycore/internal/infra/persistence/memory"
	"harmonycore/internal/infra/persistence/sqlite"
	"harmonycore/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(config.Storage{Driver: config.StorageMemory}, nil)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.db")
	store, err := OpenPersistentStore(config.Storage{SQLitePath: path}, entitymodel.Default())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = store.Close() }()
	s, ok := store.(*sqlite.Store)
	if !ok || s.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.InsertRow(entitymodel.TableStudies, domain.Record{"study_id": "GSE100"})
		return err
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, err := OpenPersistentStore(config.Storage{Driver: "mongo"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
