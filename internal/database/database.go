// Package database opens the GORM connections behind the SQLite and Postgres
// fault stores.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cablewatch/cablemap/internal/config"
)

// DefaultMemoryDSN is the shared in-memory SQLite database.
const DefaultMemoryDSN = "file::memory:?cache=shared"

// ErrNoSnapshot is returned by OpenSnapshot when no snapshot file exists.
var ErrNoSnapshot = errors.New("no snapshot on disk")

var sqlitePragmas = []string{
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA temp_store = MEMORY;",
}

// MemoryDSN returns a named shared in-memory SQLite DSN. An empty name gives DefaultMemoryDSN.
func MemoryDSN(name string) string {
	if name == "" {
		return DefaultMemoryDSN
	}
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// PostgresDSN builds a libpq connection string.
func PostgresDSN(cfg config.DBConfig) string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)
}

// OpenPostgres connects to the configured Postgres database.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// OpenSQLite opens dsn, or the shared in-memory database when dsn is empty.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = DefaultMemoryDSN
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// OpenSnapshot opens a snapshot previously written by Snapshot.
func OpenSnapshot(path string) (*gorm.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// Snapshot writes a point-in-time copy of db to path with VACUUM INTO,
// replacing any previous snapshot.
func Snapshot(db *gorm.DB, path string) error {
	if path == "" {
		return fmt.Errorf("snapshot path not set")
	}
	if strings.Contains(path, "'") {
		return fmt.Errorf("invalid snapshot path %q", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// VACUUM INTO refuses to overwrite, so write beside the target and rename.
	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	if err := db.Exec("VACUUM INTO '" + tmp + "';").Error; err != nil {
		return fmt.Errorf("error writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error replacing snapshot: %w", err)
	}
	return nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
