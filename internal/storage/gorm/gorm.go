// Package gormstorage implements storage.FaultStore on any GORM dialect. The SQLite and
// Postgres backends embed it and only add connection and dump concerns.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cablewatch/cablemap/internal/model"
	"github.com/cablewatch/cablemap/internal/storage"
	"github.com/cablewatch/cablemap/pkg/core"
)

// Backend implements storage.FaultStore using GORM.
type Backend struct {
	db     *gorm.DB
	logger *slog.Logger
	ready  bool
}

var _ storage.FaultStore = (*Backend)(nil)

// New creates a new GORM storage backend on an open connection.
func New(db *gorm.DB, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{db: db, logger: logger}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB { return b.db }

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.db == nil {
		return storage.ErrNotInitialized
	}
	if err := b.db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	b.ready = true
	b.logger.Debug("Fault store schema migrated", "dialect", b.db.Dialector.Name())
	return nil
}

// Close closes the underlying sql.DB.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	b.ready = false
	return sqlDB.Close()
}

// Save upserts a fault by ID.
func (b *Backend) Save(f core.FaultEvent) error {
	if !b.ready {
		return storage.ErrNotInitialized
	}
	rec, err := model.NewFaultRecord(f)
	if err != nil {
		return err
	}
	err = b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save fault %s: %w", f.ID, err)
	}
	return nil
}

// Get returns a fault by ID.
func (b *Backend) Get(id string) (core.FaultEvent, bool, error) {
	if !b.ready {
		return core.FaultEvent{}, false, storage.ErrNotInitialized
	}
	var rec model.FaultRecord
	err := b.db.Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.FaultEvent{}, false, nil
	}
	if err != nil {
		return core.FaultEvent{}, false, fmt.Errorf("failed to load fault %s: %w", id, err)
	}
	f, err := rec.Event()
	if err != nil {
		return core.FaultEvent{}, false, err
	}
	return f, true, nil
}

// List returns the faults of a segment ordered by simulation time.
func (b *Backend) List(segment core.SegmentRef) ([]core.FaultEvent, error) {
	if !b.ready {
		return nil, storage.ErrNotInitialized
	}
	q := b.db.Order("simulated_at asc").Order("id asc")
	if segment != (core.SegmentRef{}) {
		q = q.Where("cable_system = ? AND segment_id = ?", segment.CableSystem, segment.SegmentID)
	}

	var recs []model.FaultRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list faults: %w", err)
	}

	out := make([]core.FaultEvent, 0, len(recs))
	for _, rec := range recs {
		f, err := rec.Event()
		if err != nil {
			b.logger.Warn("Skipping unreadable fault record", "id", rec.ID, "error", err)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// Count returns the number of stored faults.
func (b *Backend) Count() (int, error) {
	if !b.ready {
		return 0, storage.ErrNotInitialized
	}
	var n int64
	if err := b.db.Model(&model.FaultRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count faults: %w", err)
	}
	return int(n), nil
}

// Delete removes the faults with the given IDs.
func (b *Backend) Delete(ids ...string) error {
	if !b.ready {
		return storage.ErrNotInitialized
	}
	if len(ids) == 0 {
		return nil
	}
	if err := b.db.Where("id IN ?", ids).Delete(&model.FaultRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete faults: %w", err)
	}
	return nil
}

// Clear deletes every fault.
func (b *Backend) Clear() error {
	if !b.ready {
		return storage.ErrNotInitialized
	}
	err := b.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.FaultRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear faults: %w", err)
	}
	return nil
}
