// Package cache stores per-day convocation summaries and the last-seen-sizes snapshot.
//
// # Overview
//
// Each cached day lives in its own file, <cache-dir>/YYYY-MM-DD.json, holding
// whatever JSON the external day builder produced. Entries are independent:
// no entry is read while building or reading another.
//
// Alongside the entries sits last-seen-sizes.json, a map from absolute raw log
// path to the byte size observed by the last successful refresh. It is only
// rewritten once every planned entry has been rebuilt, so a stale snapshot
// always means "some entries may be stale, rebuild them again".
//
// # Atomicity
//
// Entries, the snapshot and the aggregate are written to a sibling .tmp file
// and renamed into place. Readers never observe a half-written file. This is
// best-effort with respect to crashes: the rename is atomic on POSIX
// filesystems but the data is not fsynced.
//
// # Aggregate
//
// Materialize merges every entry into a single document keyed by date. It
// never decides staleness; it trusts the commit discipline of the refresh.
package cache

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrEntryNotFound is returned by Read when no entry exists for the day.
var ErrEntryNotFound = errors.New("cache entry not found")

// Backend is the interface for per-day entry storage.
// The default implementation is FilesystemBackend which stores JSON files on disk.
type Backend interface {
	// Path returns the location of the entry for the given day.
	Path(day time.Time) string

	// Read returns the raw JSON for the given day or ErrEntryNotFound.
	Read(day time.Time) (json.RawMessage, error)

	// Write persists content atomically using temp file + rename.
	Write(day time.Time, content json.RawMessage) error

	// Install validates a fully written file produced elsewhere and moves it
	// into place as the entry for day. The source file is consumed.
	Install(day time.Time, srcPath string) error

	// Dates returns every day that currently has an entry, ascending.
	Dates() ([]time.Time, error)
}

// Snapshot maps absolute raw log paths to the byte size last seen for them.
type Snapshot map[string]int64

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Equal reports whether both snapshots record exactly the same sizes.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for k, v := range s {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// SnapshotStore loads and commits the last-seen-sizes snapshot.
type SnapshotStore interface {
	// Load returns the committed snapshot; a missing snapshot is an empty one.
	Load() (Snapshot, error)

	// Save replaces the committed snapshot atomically.
	Save(s Snapshot) error
}

// Aggregate maps YYYY-MM-DD to that day's entry content.
type Aggregate map[string]json.RawMessage
