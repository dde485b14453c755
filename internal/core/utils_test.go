package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2024-07-15", "2024-07-15", false},
		{"2023-01-01", "2023-01-01", false},
		{" 2020-01-02\n", "2020-01-02", false},
		{"invalid", "", true},
		{"07/15/2024", "", true},
		{"2020-02-30", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Format(DateFmt) != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got.Format(DateFmt), tt.want)
			}
		})
	}
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("X", -5*3600)
	in := time.Date(2024, 7, 15, 23, 30, 0, 0, loc)
	got := DateOnly(in)
	if got.Location() != time.UTC || got.Hour() != 0 || FormatDate(got) != "2024-07-15" {
		t.Errorf("DateOnly(%v) = %v", in, got)
	}
}

func TestAddDays(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"2020-01-01", -1, "2019-12-31"},
		{"2020-02-28", 1, "2020-02-29"},
		{"2020-12-31", 1, "2021-01-01"},
		{"2021-03-01", -1, "2021-02-28"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s%+d", tt.in, tt.n), func(t *testing.T) {
			got := FormatDate(AddDays(mustDate(t, tt.in), tt.n))
			if got != tt.want {
				t.Errorf("AddDays(%s, %d) = %s, want %s", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestDatesBetween(t *testing.T) {
	got := FormatDates(DatesBetween(mustDate(t, "2019-12-30"), mustDate(t, "2020-01-02")))
	want := "2019-12-30,2019-12-31,2020-01-01,2020-01-02"
	if strings.Join(got, ",") != want {
		t.Errorf("DatesBetween = %v, want %s", got, want)
	}

	if days := DatesBetween(mustDate(t, "2020-01-02"), mustDate(t, "2020-01-01")); days != nil {
		t.Errorf("expected nil for reversed bounds, got %v", days)
	}

	single := DatesBetween(mustDate(t, "2020-01-02"), mustDate(t, "2020-01-02"))
	if len(single) != 1 {
		t.Errorf("expected one day, got %d", len(single))
	}
}

func TestDateRange(t *testing.T) {
	r := NewDateRange(mustDate(t, "2020-01-05"), mustDate(t, "2020-01-03"))
	if FormatDate(r.Start) != "2020-01-03" || FormatDate(r.End) != "2020-01-05" {
		t.Fatalf("NewDateRange did not order bounds: %v", r)
	}

	for _, tt := range []struct {
		d    string
		want bool
	}{
		{"2020-01-02", false},
		{"2020-01-03", true},
		{"2020-01-04", true},
		{"2020-01-05", true},
		{"2020-01-06", false},
	} {
		if got := r.Contains(mustDate(t, tt.d)); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.d, got, tt.want)
		}
	}

	u := r.Union(NewDateRange(mustDate(t, "2019-12-31"), mustDate(t, "2020-01-04")))
	if u.String() != "2019-12-31→2020-01-05" {
		t.Errorf("Union = %s", u)
	}
	if n := len(u.Days()); n != 6 {
		t.Errorf("expected 6 days, got %d", n)
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	var err error = fmt.Errorf("detect: %w", &AppendOnlyError{Kind: ViolationTruncated, Paths: []string{"/logs/a.log"}, Expected: 10, Actual: 4})
	if !errors.Is(err, ErrAppendOnlyViolation) {
		t.Error("expected truncation to match ErrAppendOnlyViolation")
	}
	if !strings.Contains(err.Error(), "has length 4 but expected 10") {
		t.Errorf("unexpected message: %v", err)
	}

	timeout := fmt.Errorf("build: %w", &AdapterError{Step: "build", Target: "2020-01-01", ExitCode: -1, TimedOut: true})
	if !errors.Is(timeout, ErrAdapterFailure) || !errors.Is(timeout, ErrTimeout) {
		t.Error("expected timeout to match both adapter sentinels")
	}

	exit := &AdapterError{Step: "scan", Target: "/logs/a.log", ExitCode: 2, Stderr: "boom\n"}
	if errors.Is(exit, ErrTimeout) {
		t.Error("non-timeout adapter error matched ErrTimeout")
	}
	var ae *AdapterError
	if !errors.As(fmt.Errorf("wrapped: %w", exit), &ae) || ae.ExitCode != 2 {
		t.Error("expected errors.As to recover AdapterError")
	}
	if !strings.Contains(exit.Error(), "exited with status 2") || !strings.Contains(exit.Error(), "boom") {
		t.Errorf("unexpected message: %v", exit)
	}
}
