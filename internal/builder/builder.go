// Package builder produces one day's cache entry by running the external
// aggregation step and installing its output atomically.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/colthorp/convocache/internal/cache"
	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/external"
)

// Builder (re)builds the cache entry for a single date.
// Implementations must be safe for concurrent use across different dates.
type Builder interface {
	Build(ctx context.Context, day time.Time) error
}

// CommandBuilder invokes an external program as
//
//	<cmd> RAW_LOGS_DIR OUTPUT_PATH DATE NEXT_DAY PREV_DAY
//
// The program writes the day's JSON to OUTPUT_PATH, a temp file next to the
// entry; it only becomes visible to readers once validated and renamed.
type CommandBuilder struct {
	cmd        *external.Command
	rawLogsDir string
	backend    cache.Backend
	logger     zerolog.Logger
}

// NewCommandBuilder creates a builder writing entries into backend.
func NewCommandBuilder(cmd *external.Command, rawLogsDir string, backend cache.Backend, logger zerolog.Logger) *CommandBuilder {
	return &CommandBuilder{
		cmd:        cmd,
		rawLogsDir: rawLogsDir,
		backend:    backend,
		logger:     logger.With().Str("component", "builder").Logger(),
	}
}

// TempPath returns where the external step writes the entry for day before it is installed.
func TempPath(backend cache.Backend, day time.Time) string {
	return backend.Path(day) + core.TmpSuffix
}

// Args returns the arguments passed to the external step for day.
func Args(rawLogsDir, outPath string, day time.Time) []string {
	return []string{
		rawLogsDir,
		outPath,
		core.FormatDate(day),
		core.FormatDate(core.AddDays(day, 1)),
		core.FormatDate(core.AddDays(day, -1)),
	}
}

// Build runs the external step for day. On any failure the temp output is
// removed and the existing entry, if any, is left untouched.
func (b *CommandBuilder) Build(ctx context.Context, day time.Time) error {
	date := core.FormatDate(day)
	tmp := TempPath(b.backend, day)

	if err := os.MkdirAll(filepath.Dir(tmp), 0755); err != nil {
		return fmt.Errorf("prepare cache dir: %w", err)
	}

	start := time.Now()
	out, err := b.cmd.Run(ctx, "build", date, Args(b.rawLogsDir, tmp, day)...)
	if s := strings.TrimSpace(out.Stderr); s != "" {
		b.logger.Debug().Str("date", date).Str("stderr", s).Msg("Builder diagnostics")
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if err := b.backend.Install(day, tmp); err != nil {
		os.Remove(tmp)
		return &core.AdapterError{Step: "build", Target: date, Err: err}
	}

	b.logger.Debug().
		Str("date", date).
		Dur("elapsed", time.Since(start)).
		Msg("Built cache entry")
	return nil
}
