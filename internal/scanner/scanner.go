// Package scanner finds the span of log-entry dates in the unread suffix of a raw log.
package scanner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/external"
)

// Result is the outcome of scanning one file suffix.
// Found is false when the suffix held no dated entries; Range is then meaningless.
type Result struct {
	Found bool
	Range core.DateRange
}

// None is the result for a suffix without dated entries.
var None = Result{}

// Scanner reports the dates of entries stored after offset in the file at path.
// Implementations must be safe for concurrent use across different files.
type Scanner interface {
	Scan(ctx context.Context, path string, offset int64) (Result, error)
}

// CommandScanner delegates to an external program invoked as `<cmd> OFFSET PATH`.
// The program prints nothing when there are no new entries, or "MIN MAX" as
// two YYYY-MM-DD dates. Any stderr output is fatal.
type CommandScanner struct {
	cmd *external.Command
}

// NewCommandScanner wraps cmd, forcing the stderr-is-fatal policy.
func NewCommandScanner(cmd *external.Command) *CommandScanner {
	c := *cmd
	c.FailOnStderr = true
	return &CommandScanner{cmd: &c}
}

// Scan runs the external scanner for one file.
func (s *CommandScanner) Scan(ctx context.Context, path string, offset int64) (Result, error) {
	out, err := s.cmd.Run(ctx, "scan", path, strconv.FormatInt(offset, 10), path)
	if err != nil {
		return None, err
	}

	res, err := ParseOutput(out.Stdout)
	if err != nil {
		return None, &core.AdapterError{Step: "scan", Target: path, Err: err}
	}
	return res, nil
}

// ParseOutput interprets scanner stdout. Blank output means no entries;
// otherwise it must be exactly two valid dates with min <= max.
func ParseOutput(stdout string) (Result, error) {
	fields := strings.Fields(stdout)
	switch len(fields) {
	case 0:
		return None, nil
	case 2:
	default:
		return None, fmt.Errorf("malformed scanner output %q (want \"YYYY-MM-DD YYYY-MM-DD\" or nothing)", strings.TrimSpace(stdout))
	}

	lo, err := core.ParseDate(fields[0])
	if err != nil {
		return None, err
	}
	hi, err := core.ParseDate(fields[1])
	if err != nil {
		return None, err
	}
	if hi.Before(lo) {
		return None, fmt.Errorf("scanner reported min %s after max %s", fields[0], fields[1])
	}

	return Result{Found: true, Range: core.DateRange{Start: lo, End: hi}}, nil
}

// Format renders a result in the external scanner's stdout format.
func Format(r Result) string {
	if !r.Found {
		return ""
	}
	return core.FormatDate(r.Range.Start) + " " + core.FormatDate(r.Range.End)
}
