package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching across layers.
var (
	ErrAppendOnlyViolation = errors.New("append-only violation")
	ErrAdapterFailure      = errors.New("external step failed")
	ErrTimeout             = errors.New("external step timed out")
)

// ViolationKind distinguishes the ways a raw log can break the append-only assumption.
type ViolationKind string

const (
	ViolationDeleted   ViolationKind = "deleted"
	ViolationTruncated ViolationKind = "truncated"
)

// AppendOnlyError is returned when raw logs were deleted or shrank since the last refresh.
type AppendOnlyError struct {
	Kind     ViolationKind
	Paths    []string
	Expected int64 // last seen size, truncation only
	Actual   int64 // current size, truncation only
}

func (e *AppendOnlyError) Error() string {
	switch e.Kind {
	case ViolationDeleted:
		return fmt.Sprintf("log files have been deleted since last run: %s", strings.Join(e.Paths, ", "))
	case ViolationTruncated:
		return fmt.Sprintf("%s has length %d but expected %d or greater", strings.Join(e.Paths, ", "), e.Actual, e.Expected)
	}
	return fmt.Sprintf("append-only violation (%s): %s", e.Kind, strings.Join(e.Paths, ", "))
}

// Is matches ErrAppendOnlyViolation.
func (e *AppendOnlyError) Is(target error) bool {
	return target == ErrAppendOnlyViolation
}

// AdapterError is returned when an external scanner or builder step does not terminate cleanly.
type AdapterError struct {
	Step     string // "scan" or "build"
	Target   string // file path or date
	ExitCode int    // -1 when the process never exited normally
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *AdapterError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Step, e.Target)
	switch {
	case e.TimedOut:
		b.WriteString(": timed out")
	case e.ExitCode > 0:
		fmt.Fprintf(&b, ": exited with status %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, "\n\n%s", s)
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *AdapterError) Unwrap() error { return e.Err }

// Is matches ErrAdapterFailure, and ErrTimeout for timeouts.
func (e *AdapterError) Is(target error) bool {
	if target == ErrAdapterFailure {
		return true
	}
	return target == ErrTimeout && e.TimedOut
}
