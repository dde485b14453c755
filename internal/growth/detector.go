// Package growth works out which calendar dates gained raw log entries since
// the last committed snapshot.
package growth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colthorp/convocache/internal/cache"
	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/scanner"
)

// Growth is what changed in the raw logs directory since a snapshot.
type Growth struct {
	// Found is false when no file gained dated entries; Range is then meaningless.
	Found bool
	Range core.DateRange

	// Sizes are the file sizes observed before scanning. Committing them once the
	// rebuild succeeds makes the next run start exactly where this one looked.
	Sizes cache.Snapshot

	// Scanned lists the files that had unread bytes.
	Scanned []string
}

// Detector compares raw logs against a snapshot and scans their new suffixes.
type Detector struct {
	rawLogsDir string
	suffix     string
	scanner    scanner.Scanner
	parallel   int
	logger     zerolog.Logger
}

// NewDetector creates a detector for the logs ending in suffix directly under rawLogsDir.
func NewDetector(rawLogsDir, suffix string, sc scanner.Scanner, parallel int, logger zerolog.Logger) (*Detector, error) {
	abs, err := filepath.Abs(rawLogsDir)
	if err != nil {
		return nil, err
	}
	if suffix == "" {
		suffix = core.DefaultLogSuffix
	}
	if parallel <= 0 {
		parallel = core.DefaultParallel
	}
	return &Detector{
		rawLogsDir: abs,
		suffix:     suffix,
		scanner:    sc,
		parallel:   parallel,
		logger:     logger.With().Str("component", "growth").Logger(),
	}, nil
}

// CurrentSizes lists the raw logs and their sizes, keyed by absolute path.
func (d *Detector) CurrentSizes() (cache.Snapshot, error) {
	entries, err := os.ReadDir(d.rawLogsDir)
	if err != nil {
		return nil, fmt.Errorf("list raw logs: %w", err)
	}

	sizes := cache.Snapshot{}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), d.suffix) {
			continue
		}

		path := filepath.Join(d.rawLogsDir, entry.Name())
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue // dangling symlink
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		sizes[path] = info.Size()
	}
	return sizes, nil
}

// Detect returns the inclusive date span of entries appended since snap.
//
// Deleted or shrunk logs fail with *core.AppendOnlyError before any scanning.
// Scans run concurrently; the first scanner failure cancels the rest and is returned.
func (d *Detector) Detect(ctx context.Context, snap cache.Snapshot) (Growth, error) {
	current, err := d.CurrentSizes()
	if err != nil {
		return Growth{}, err
	}

	if err := checkAppendOnly(snap, current); err != nil {
		return Growth{}, err
	}

	paths := make([]string, 0, len(current))
	for path, size := range current {
		if size == snap[path] {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	d.logger.Debug().
		Int("files", len(current)).
		Int("grown", len(paths)).
		Msg("Scanning raw logs for new entries")

	results := make([]scanner.Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)

	for i, path := range paths {
		g.Go(func() error {
			res, err := d.scanner.Scan(gctx, path, snap[path])
			if err != nil {
				return fmt.Errorf("scan %s: %w", path, err)
			}
			results[i] = res

			ev := d.logger.Debug().Str("file", path).Int64("offset", snap[path]).Int64("size", current[path])
			if res.Found {
				ev = ev.Str("range", res.Range.String())
			}
			ev.Bool("found", res.Found).Msg("Scanned log suffix")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Growth{}, err
	}

	out := Growth{Sizes: current, Scanned: paths}
	for _, res := range results {
		if !res.Found {
			continue
		}
		if !out.Found {
			out.Found, out.Range = true, res.Range
			continue
		}
		out.Range = out.Range.Union(res.Range)
	}
	return out, nil
}

// checkAppendOnly rejects deleted logs and logs smaller than last recorded.
func checkAppendOnly(snap, current cache.Snapshot) error {
	var deleted []string
	for path := range snap {
		if _, ok := current[path]; !ok {
			deleted = append(deleted, path)
		}
	}
	if len(deleted) > 0 {
		sort.Strings(deleted)
		return &core.AppendOnlyError{Kind: core.ViolationDeleted, Paths: deleted}
	}

	paths := make([]string, 0, len(current))
	for path := range current {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if last, ok := snap[path]; ok && current[path] < last {
			return &core.AppendOnlyError{
				Kind:     core.ViolationTruncated,
				Paths:    []string{path},
				Expected: last,
				Actual:   current[path],
			}
		}
	}
	return nil
}
