// Package postgres implements storage.FaultStore on PostgreSQL through the
// shared GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/cablewatch/cablemap/internal/config"
	"github.com/cablewatch/cablemap/internal/database"
	gormstorage "github.com/cablewatch/cablemap/internal/storage/gorm"
)

const maxOpenConns = 10

// Backend implements storage.FaultStore using GORM/PostgreSQL.
type Backend struct {
	*gormstorage.Backend
	cfg config.DBConfig
	log *slog.Logger
}

// New creates a Postgres backend. The connection is opened by Init.
func New(cfg config.DBConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, log: logger}
}

// Init connects, validates the connection and migrates the schema.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate postgres connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	b.Backend = gormstorage.New(db, b.log)
	if err := b.Backend.Init(); err != nil {
		return err
	}
	b.log.Info("Connected to database", "host", b.cfg.Host, "database", b.cfg.Database)
	return nil
}

// Close closes the connection if Init succeeded.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
