// Package sqlitestorage implements storage.FaultStore on an in-memory SQLite
// database with periodic disk snapshots via VACUUM INTO. The last snapshot is
// loaded back on Init. Everything else is delegated to the embedded GORM backend.
package sqlitestorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/cablewatch/cablemap/internal/database"
	gormstorage "github.com/cablewatch/cablemap/internal/storage/gorm"
	"github.com/cablewatch/cablemap/pkg/core"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	// Name selects a private in-memory database; empty uses the shared default.
	Name         string
	DumpInterval time.Duration
	DumpPath     string // snapshot file, restored on Init when present
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.OpenSQLite(database.MemoryDSN(cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	return &Backend{
		Backend:  gormstorage.New(db, logger),
		db:       db,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init migrates the schema, restores the last snapshot and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" {
		n, err := b.restore()
		switch {
		case errors.Is(err, database.ErrNoSnapshot):
		case err != nil:
			b.log.Warn("Could not restore fault snapshot", "error", err, "path", b.cfg.DumpPath)
		default:
			b.log.Info("Restored fault snapshot", "faults", n, "path", b.cfg.DumpPath)
		}
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the embedded GORM backend.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()

	if b.cfg.DumpPath != "" {
		if err := b.Dump(); err != nil {
			b.log.Error("Final SQLite dump failed", "error", err, "path", b.cfg.DumpPath)
		}
	}
	return b.Backend.Close()
}

// Dump writes a point-in-time copy of the database to DumpPath.
func (b *Backend) Dump() error {
	return database.Snapshot(b.db, b.cfg.DumpPath)
}

// restore copies every fault from the snapshot into the in-memory database.
func (b *Backend) restore() (int, error) {
	snap, err := database.OpenSnapshot(b.cfg.DumpPath)
	if err != nil {
		return 0, err
	}
	defer database.Close(snap)

	from := gormstorage.New(snap, b.log)
	if err := from.Init(); err != nil {
		return 0, err
	}
	faults, err := from.List(core.SegmentRef{})
	if err != nil {
		return 0, err
	}
	for _, f := range faults {
		if err := b.Save(f); err != nil {
			return 0, err
		}
	}
	return len(faults), nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping fault store to disk", "error", err, "path", b.cfg.DumpPath)
			} else {
				b.log.Debug("Dumped fault store to disk", "duration", time.Since(start), "path", b.cfg.DumpPath)
			}
		}
	}
}
