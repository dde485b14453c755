package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/colthorp/convocache/internal/core"
)

var entryNameRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.json$`)

// FilesystemBackend stores one JSON file per day directly under root.
// Layout: <root>/YYYY-MM-DD.json
type FilesystemBackend struct {
	root string
}

// NewFilesystemBackend creates a new filesystem-based cache backend.
func NewFilesystemBackend(root string) *FilesystemBackend {
	return &FilesystemBackend{root: root}
}

// Path returns the filesystem path for the given day.
func (b *FilesystemBackend) Path(day time.Time) string {
	return filepath.Join(b.root, core.FormatDate(day)+core.EntryExt)
}

// Read returns the cached JSON for the given day.
func (b *FilesystemBackend) Read(day time.Time) (json.RawMessage, error) {
	data, err := os.ReadFile(b.Path(day))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("cache entry %s is not valid JSON", b.Path(day))
	}
	return json.RawMessage(data), nil
}

// Write persists the entry atomically.
func (b *FilesystemBackend) Write(day time.Time, content json.RawMessage) error {
	if !json.Valid(content) {
		return fmt.Errorf("refusing to cache invalid JSON for %s", core.FormatDate(day))
	}
	return WriteFileAtomic(b.Path(day), content)
}

// Install validates srcPath as JSON and renames it onto the entry for day.
// On validation failure srcPath is removed and the existing entry is untouched.
func (b *FilesystemBackend) Install(day time.Time, srcPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read built entry: %w", err)
	}
	if !json.Valid(data) {
		os.Remove(srcPath)
		return fmt.Errorf("built entry for %s is not valid JSON", core.FormatDate(day))
	}

	if err := os.MkdirAll(b.root, 0755); err != nil {
		return err
	}
	return os.Rename(srcPath, b.Path(day))
}

// Dates lists every day with an entry. A missing cache directory has none.
// Only files named YYYY-MM-DD.json count; the snapshot and temp files never match.
func (b *FilesystemBackend) Dates() ([]time.Time, error) {
	files, err := os.ReadDir(b.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}

	days := make([]time.Time, 0, len(files))
	for _, file := range files {
		if !file.Type().IsRegular() || !entryNameRe.MatchString(file.Name()) {
			continue
		}

		d, err := time.Parse(core.DateFmt, file.Name()[:10])
		if err != nil {
			continue
		}
		days = append(days, d)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// FileSnapshot persists the last-seen-sizes snapshot as a JSON file.
type FileSnapshot struct {
	path string
}

// NewFileSnapshot returns a snapshot store kept inside the cache directory.
func NewFileSnapshot(cacheDir string) *FileSnapshot {
	return &FileSnapshot{path: filepath.Join(cacheDir, core.SnapshotFileName)}
}

// Path returns the snapshot file location.
func (s *FileSnapshot) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file means every log is new.
func (s *FileSnapshot) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}

	snap := Snapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", s.path, err)
	}
	return snap, nil
}

// Save writes the snapshot atomically.
func (s *FileSnapshot) Save(snap Snapshot) error {
	if snap == nil {
		snap = Snapshot{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path, data)
}

// WriteFileAtomic writes data to path via a sibling temp file and rename,
// creating parent directories as needed.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + core.TmpSuffix
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
