package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/colthorp/convocache/internal/core"
)

// MemoryBackend is an in-memory cache backend for testing.
type MemoryBackend struct {
	entries map[string]json.RawMessage
	writes  int
	mu      sync.RWMutex
}

// NewMemoryBackend creates a new in-memory cache backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]json.RawMessage),
	}
}

// Path returns a dummy path for the given day.
func (b *MemoryBackend) Path(day time.Time) string {
	return core.FormatDate(day) + core.EntryExt
}

// Read returns cached entry for the given day.
func (b *MemoryBackend) Read(day time.Time) (json.RawMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if entry, ok := b.entries[core.FormatDate(day)]; ok {
		return append(json.RawMessage(nil), entry...), nil
	}
	return nil, ErrEntryNotFound
}

// Write persists the entry.
func (b *MemoryBackend) Write(day time.Time, content json.RawMessage) error {
	if !json.Valid(content) {
		return fmt.Errorf("refusing to cache invalid JSON for %s", core.FormatDate(day))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[core.FormatDate(day)] = append(json.RawMessage(nil), content...)
	b.writes++
	return nil
}

// Install reads srcPath from disk into memory and removes it.
func (b *MemoryBackend) Install(day time.Time, srcPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	os.Remove(srcPath)
	return b.Write(day, data)
}

// Dates returns every cached day, ascending.
func (b *MemoryBackend) Dates() ([]time.Time, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	days := make([]time.Time, 0, len(b.entries))
	for dateStr := range b.entries {
		d, err := time.Parse(core.DateFmt, dateStr)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// Writes returns how many entries have been written (for testing).
func (b *MemoryBackend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}

// Seed adds entries directly without counting them as writes (for testing).
func (b *MemoryBackend) Seed(entries map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for dateStr, content := range entries {
		b.entries[dateStr] = json.RawMessage(content)
	}
}

// MemorySnapshot is an in-memory SnapshotStore for testing.
type MemorySnapshot struct {
	mu    sync.Mutex
	snap  Snapshot
	saves int
}

// NewMemorySnapshot creates a snapshot store seeded with s (nil means none committed yet).
func NewMemorySnapshot(s Snapshot) *MemorySnapshot {
	return &MemorySnapshot{snap: s.Clone()}
}

// Load returns a copy of the committed snapshot.
func (m *MemorySnapshot) Load() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

// Save replaces the committed snapshot.
func (m *MemorySnapshot) Save(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s.Clone()
	m.saves++
	return nil
}

// Saves returns how many times the snapshot was committed (for testing).
func (m *MemorySnapshot) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
