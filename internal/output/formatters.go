// Package output provides output formatting utilities for the convocache CLI.
// Everything here writes machine-readable output; diagnostics go to the logger.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/colthorp/convocache/internal/cache"
	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/refresh"
)

// Range is the JSON form of a date range.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Report summarises a refresh or a dry run.
type Report struct {
	RunID     string   `json:"run_id"`
	Range     *Range   `json:"range"` // null when there was no new content
	Scanned   int      `json:"scanned_files"`
	Planned   []string `json:"planned"`
	Rebuild   []string `json:"rebuild"`
	New       []string `json:"new"`
	Built     int      `json:"built"`
	Committed bool     `json:"committed"`
	Entries   *int     `json:"entries,omitempty"` // set once the aggregate was materialized
	ElapsedMS int64    `json:"elapsed_ms"`
}

// NewReport converts a refresh result into its JSON report.
func NewReport(res refresh.Result) Report {
	r := Report{
		RunID:     res.RunID,
		Scanned:   res.Scanned,
		Planned:   core.FormatDates(res.Plan.Dates),
		Rebuild:   core.FormatDates(res.Plan.Rebuild),
		New:       core.FormatDates(res.Plan.New()),
		Built:     res.Built,
		Committed: res.Committed,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	if res.Found {
		r.Range = &Range{Start: core.FormatDate(res.Range.Start), End: core.FormatDate(res.Range.End)}
	}
	if res.Aggregate != nil {
		n := len(res.Aggregate)
		r.Entries = &n
	}
	return r
}

// WriteJSON writes a single item as formatted JSON followed by a newline.
func WriteJSON(w io.Writer, item interface{}) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintJSON prints a single item as formatted JSON to stdout.
func PrintJSON(item interface{}) {
	if err := WriteJSON(os.Stdout, item); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
	}
}

// WriteAggregate writes the aggregate as one compact JSON object, keys in date order.
func WriteAggregate(w io.Writer, agg cache.Aggregate) error {
	data, err := agg.Marshal()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
