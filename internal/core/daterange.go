package core

import (
	"fmt"
	"time"
)

// DateRange is an inclusive span of calendar dates.
// The zero value is not a valid range; use NewDateRange.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a range from two dates, swapping them if needed.
func NewDateRange(a, b time.Time) DateRange {
	a, b = DateOnly(a), DateOnly(b)
	if b.Before(a) {
		a, b = b, a
	}
	return DateRange{Start: a, End: b}
}

// Contains reports whether d falls within the range.
func (r DateRange) Contains(d time.Time) bool {
	d = DateOnly(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Union returns the smallest range covering both r and o.
func (r DateRange) Union(o DateRange) DateRange {
	out := r
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if o.End.After(out.End) {
		out.End = o.End
	}
	return out
}

// Days returns every date in the range.
func (r DateRange) Days() []time.Time {
	return DatesBetween(r.Start, r.End)
}

// String renders the range as "start→end".
func (r DateRange) String() string {
	return fmt.Sprintf("%s→%s", FormatDate(r.Start), FormatDate(r.End))
}
