// internal/storage/memory/memory.go
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cablewatch/cablemap/internal/config"
	"github.com/cablewatch/cablemap/internal/storage"
	"github.com/cablewatch/cablemap/pkg/core"
)

// snapshot is the on-disk form written on Close.
type snapshot struct {
	Version int               `json:"version"`
	Faults  []core.CutRecord  `json:"faults"`
	Owners  []core.SegmentRef `json:"owners"`
}

// Backend stores faults in memory, optionally persisted to a JSON snapshot
type Backend struct {
	cfg    config.MemoryConfig
	faults map[string]core.FaultEvent
	mu     sync.RWMutex
}

var _ storage.FaultStore = (*Backend)(nil)

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		faults: make(map[string]core.FaultEvent),
	}
}

// Init loads the snapshot file when one is configured and present
func (b *Backend) Init() error {
	if b.cfg.SnapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(b.cfg.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read fault snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode fault snapshot: %w", err)
	}
	if len(snap.Owners) != len(snap.Faults) {
		return fmt.Errorf("corrupt fault snapshot: %d faults, %d owners", len(snap.Faults), len(snap.Owners))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, rec := range snap.Faults {
		f, err := rec.Event(snap.Owners[i])
		if err != nil {
			return fmt.Errorf("corrupt fault snapshot: %w", err)
		}
		b.faults[f.ID] = f
	}
	return nil
}

// Close writes the snapshot file when one is configured
func (b *Backend) Close() error {
	if b.cfg.SnapshotPath == "" {
		return nil
	}

	faults, _ := b.List(core.SegmentRef{})
	snap := snapshot{Version: 1, Faults: make([]core.CutRecord, 0, len(faults)), Owners: make([]core.SegmentRef, 0, len(faults))}
	for _, f := range faults {
		snap.Faults = append(snap.Faults, core.CutRecordFromEvent(f))
		snap.Owners = append(snap.Owners, f.Segment)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fault snapshot: %w", err)
	}

	// Ensure output directory exists
	if err := os.MkdirAll(filepath.Dir(b.cfg.SnapshotPath), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp := b.cfg.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write fault snapshot: %w", err)
	}
	return os.Rename(tmp, b.cfg.SnapshotPath)
}

// Save inserts or replaces a fault
func (b *Backend) Save(f core.FaultEvent) error {
	if f.ID == "" {
		return fmt.Errorf("fault has no id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[f.ID] = f
	return nil
}

// Get returns a fault by id
func (b *Backend) Get(id string) (core.FaultEvent, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.faults[id]
	return f, ok, nil
}

// List returns the faults of a segment ordered by simulation time
func (b *Backend) List(segment core.SegmentRef) ([]core.FaultEvent, error) {
	b.mu.RLock()
	out := make([]core.FaultEvent, 0, len(b.faults))
	for _, f := range b.faults {
		if storage.Matches(segment, f) {
			out = append(out, f)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SimulatedAt.Equal(out[j].SimulatedAt) {
			return out[i].SimulatedAt.Before(out[j].SimulatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Count returns the number of stored faults
func (b *Backend) Count() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.faults), nil
}

// Delete drops the faults with the given ids
func (b *Backend) Delete(ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.faults, id)
	}
	return nil
}

// Clear drops every fault
func (b *Backend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults = make(map[string]core.FaultEvent)
	return nil
}
