package main

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cablewatch/cablemap/internal/config"
	"github.com/cablewatch/cablemap/internal/storage/memory"
	pgstorage "github.com/cablewatch/cablemap/internal/storage/postgres"
	sqlitestorage "github.com/cablewatch/cablemap/internal/storage/sqlite"
)

func TestCreateStorageBackend(t *testing.T) {
	log := slog.Default()

	s, err := createStorageBackend(config.StorageConfig{Type: StorageMemory}, log)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, s)

	s, err = createStorageBackend(config.StorageConfig{}, log)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, s)

	s, err = createStorageBackend(config.StorageConfig{Type: StoragePostgres}, log)
	require.NoError(t, err)
	assert.IsType(t, &pgstorage.Backend{}, s)

	s, err = createStorageBackend(config.StorageConfig{
		Type:   StorageSQLite,
		SQLite: config.SQLiteConfig{DumpInterval: time.Minute, DumpPath: filepath.Join(t.TempDir(), "faults.db")},
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, s)

	_, err = createStorageBackend(config.StorageConfig{Type: "cassandra"}, log)
	assert.Error(t, err)
}

func TestInitStorage_Memory(t *testing.T) {
	s, err := initStorage(config.StorageConfig{Type: StorageMemory}, slog.Default())
	require.NoError(t, err)
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, s.Close())
}
