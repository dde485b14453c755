// Package plan decides which per-day cache entries a new-content range invalidates.
//
// Every entry has three keys: its own date, the day before and the day after.
// A day's aggregation may look at its neighbours for events spanning midnight,
// so new content on any key makes the entry stale.
package plan

import (
	"sort"
	"time"

	"github.com/colthorp/convocache/internal/core"
)

// Plan is the ordered set of dates to (re)build.
type Plan struct {
	Dates []time.Time

	// Rebuild holds the planned dates that already have an entry; the rest are new.
	Rebuild []time.Time
}

// Len returns the number of planned dates.
func (p Plan) Len() int { return len(p.Dates) }

// New returns the planned dates without an existing entry.
func (p Plan) New() []time.Time {
	existing := make(map[string]bool, len(p.Rebuild))
	for _, d := range p.Rebuild {
		existing[core.FormatDate(d)] = true
	}
	var out []time.Time
	for _, d := range p.Dates {
		if !existing[core.FormatDate(d)] {
			out = append(out, d)
		}
	}
	return out
}

// Keys returns the three dates whose new content invalidates the entry for d.
func Keys(d time.Time) [3]time.Time {
	return [3]time.Time{core.AddDays(d, -1), core.DateOnly(d), core.AddDays(d, 1)}
}

// Invalidated reports whether any key of d falls inside r.
func Invalidated(d time.Time, r core.DateRange) bool {
	for _, k := range Keys(d) {
		if r.Contains(k) {
			return true
		}
	}
	return false
}

// Build plans the dates to build for new content in r, given the dates that
// already have entries. found=false means there is no new content and yields
// an empty plan.
//
// The result holds every date with a key in r: the range widened by one day on
// both sides. Existing entries outside that window are never touched.
func Build(r core.DateRange, found bool, existing []time.Time) Plan {
	if !found {
		return Plan{}
	}

	window := core.DateRange{Start: core.AddDays(r.Start, -1), End: core.AddDays(r.End, 1)}
	p := Plan{Dates: window.Days()}

	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		d = core.DateOnly(d)
		key := core.FormatDate(d)
		if seen[key] || !Invalidated(d, r) {
			continue
		}
		seen[key] = true
		p.Rebuild = append(p.Rebuild, d)
	}
	sort.Slice(p.Rebuild, func(i, j int) bool { return p.Rebuild[i].Before(p.Rebuild[j]) })
	return p
}
