package plan

import (
	"reflect"
	"testing"
	"time"

	"github.com/colthorp/convocache/internal/core"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func dates(t *testing.T, ss ...string) []time.Time {
	t.Helper()
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		out[i] = mustDate(t, s)
	}
	return out
}

func rng(t *testing.T, a, b string) core.DateRange {
	return core.NewDateRange(mustDate(t, a), mustDate(t, b))
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name        string
		start, end  string
		existing    []string
		wantDates   []string
		wantRebuild []string
	}{
		{
			name:      "fresh cache",
			start:     "2020-01-01",
			end:       "2020-01-02",
			wantDates: []string{"2019-12-31", "2020-01-01", "2020-01-02", "2020-01-03"},
		},
		{
			name:        "neighbours of the range are rebuilt",
			start:       "2020-03-10",
			end:         "2020-03-10",
			existing:    []string{"2020-03-01", "2020-03-09", "2020-03-10", "2020-03-11", "2020-03-12"},
			wantDates:   []string{"2020-03-09", "2020-03-10", "2020-03-11"},
			wantRebuild: []string{"2020-03-09", "2020-03-10", "2020-03-11"},
		},
		{
			name:        "duplicate and unsorted existing dates",
			start:       "2021-02-27",
			end:         "2021-03-01",
			existing:    []string{"2021-03-02", "2021-02-26", "2021-03-02", "2020-01-01"},
			wantDates:   []string{"2021-02-26", "2021-02-27", "2021-02-28", "2021-03-01", "2021-03-02"},
			wantRebuild: []string{"2021-02-26", "2021-03-02"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Build(rng(t, tt.start, tt.end), true, dates(t, tt.existing...))

			if got := core.FormatDates(p.Dates); !reflect.DeepEqual(got, tt.wantDates) {
				t.Errorf("Dates = %v, want %v", got, tt.wantDates)
			}
			if got := core.FormatDates(p.Rebuild); len(got)+len(tt.wantRebuild) > 0 && !reflect.DeepEqual(got, tt.wantRebuild) {
				t.Errorf("Rebuild = %v, want %v", got, tt.wantRebuild)
			}
			if len(p.New())+len(p.Rebuild) != p.Len() {
				t.Errorf("New (%d) + Rebuild (%d) != Len (%d)", len(p.New()), len(p.Rebuild), p.Len())
			}
		})
	}
}

func TestBuildNoNewContent(t *testing.T) {
	p := Build(core.DateRange{}, false, dates(t, "2020-01-01"))
	if p.Len() != 0 || len(p.Rebuild) != 0 {
		t.Errorf("expected empty plan, got %+v", p)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	r := rng(t, "2020-06-01", "2020-06-05")
	existing := dates(t, "2020-05-31", "2020-06-03", "2020-06-20")

	first := Build(r, true, existing)
	second := Build(r, true, existing)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("plans differ:\n%v\n%v", first, second)
	}
}

// Exactly the dates with a key inside the range are planned.
func TestBuildExactInvalidationCondition(t *testing.T) {
	r := rng(t, "2020-02-27", "2020-03-02") // spans a leap day

	var existing []time.Time
	for d := mustDate(t, "2020-02-15"); d.Before(mustDate(t, "2020-03-15")); d = core.AddDays(d, 1) {
		existing = append(existing, d)
	}

	planned := map[string]bool{}
	for _, d := range Build(r, true, existing).Dates {
		planned[core.FormatDate(d)] = true
	}

	for _, d := range existing {
		want := r.Contains(core.AddDays(d, -1)) || r.Contains(d) || r.Contains(core.AddDays(d, 1))
		if got := planned[core.FormatDate(d)]; got != want {
			t.Errorf("%s planned = %v, want %v", core.FormatDate(d), got, want)
		}
	}
	if len(planned) != 7 {
		t.Errorf("planned %d dates, want 7", len(planned))
	}
}

func TestInvalidated(t *testing.T) {
	r := rng(t, "2020-01-10", "2020-01-10")
	tests := map[string]bool{
		"2020-01-08": false,
		"2020-01-09": true,
		"2020-01-10": true,
		"2020-01-11": true,
		"2020-01-12": false,
	}
	for s, want := range tests {
		if got := Invalidated(mustDate(t, s), r); got != want {
			t.Errorf("Invalidated(%s) = %v, want %v", s, got, want)
		}
	}
}
