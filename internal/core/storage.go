// Package core wires the warehouse persistence backends behind a single
// constructor and guards the architectural boundaries around them.
package core

import (
	"fmt"

	"harmonycore/internal/config"
	"harmonycore/internal/entitymodel"
	"harmonycore/internal/infra/persistence/memory"
	"harmonycore/internal/infra/persistence/postgres"
	"harmonycore/internal/infra/persistence/sqlite"
	"harmonycore/pkg/domain"
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend from cfg. An empty driver means
// sqlite; empty paths and DSNs fall back to each backend's default.
func OpenPersistentStore(cfg config.Storage, schema *entitymodel.Schema) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.StorageSQLite
	}
	switch driver {
	case config.StorageMemory:
		return memory.NewStore(schema), nil
	case config.StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, schema)
	case config.StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, schema)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
