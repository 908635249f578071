package main

import (
	"fmt"
	"log/slog"

	"github.com/cablewatch/cablemap/internal/config"
	"github.com/cablewatch/cablemap/internal/storage"
	"github.com/cablewatch/cablemap/internal/storage/memory"
	pgstorage "github.com/cablewatch/cablemap/internal/storage/postgres"
	sqlitestorage "github.com/cablewatch/cablemap/internal/storage/sqlite"
)

// Storage backend names accepted by storage.type.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

func initStorage(cfg config.StorageConfig, log *slog.Logger) (storage.FaultStore, error) {
	store, err := createStorageBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s fault store: %w", cfg.Type, err)
	}
	log.Info("Fault store initialized", "type", cfg.Type)
	return store, nil
}

func createStorageBackend(cfg config.StorageConfig, log *slog.Logger) (storage.FaultStore, error) {
	switch cfg.Type {
	case StoragePostgres:
		return pgstorage.New(cfg.DB, log), nil

	case StorageSQLite:
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		return backend, nil

	case StorageMemory, "":
		return memory.New(cfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
