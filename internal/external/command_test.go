package external

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/colthorp/convocache/internal/core"
)

// script writes an executable shell script into a temp dir and returns its path.
func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "step.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse(t *testing.T) {
	cmd, err := Parse("  /usr/bin/env  node build.js ", time.Minute)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cmd.Path != "/usr/bin/env" || strings.Join(cmd.Args, " ") != "node build.js" || cmd.Timeout != time.Minute {
		t.Errorf("unexpected command: %+v", cmd)
	}
	if cmd.String() != "/usr/bin/env node build.js" {
		t.Errorf("String() = %q", cmd.String())
	}

	if _, err := Parse("   ", time.Second); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestRunPassesArgsAndCapturesStdout(t *testing.T) {
	cmd := &Command{Path: script(t, `echo "$@"`), Args: []string{"fixed"}, Timeout: 5 * time.Second}

	out, err := cmd.Run(context.Background(), "scan", "a.log", "12", "a.log")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(out.Stdout) != "fixed 12 a.log" {
		t.Errorf("Stdout = %q", out.Stdout)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	cmd := &Command{Path: script(t, "echo broken >&2; exit 3"), Timeout: 5 * time.Second}

	_, err := cmd.Run(context.Background(), "build", "2020-01-01")
	var aerr *core.AdapterError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if aerr.ExitCode != 3 || aerr.TimedOut || !strings.Contains(aerr.Stderr, "broken") {
		t.Errorf("unexpected error: %+v", aerr)
	}
	if !errors.Is(err, core.ErrAdapterFailure) {
		t.Error("expected ErrAdapterFailure")
	}
}

func TestRunTimeout(t *testing.T) {
	cmd := &Command{Path: script(t, "sleep 5"), Timeout: 100 * time.Millisecond}

	start := time.Now()
	_, err := cmd.Run(context.Background(), "scan", "slow.log")
	if !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Errorf("timeout not enforced promptly (%s)", time.Since(start))
	}
}

func TestRunStderrPolicy(t *testing.T) {
	path := script(t, "echo warning >&2; echo ok")

	lenient := &Command{Path: path, Timeout: 5 * time.Second}
	out, err := lenient.Run(context.Background(), "build", "2020-01-01")
	if err != nil {
		t.Fatalf("lenient run failed: %v", err)
	}
	if strings.TrimSpace(out.Stderr) != "warning" {
		t.Errorf("Stderr = %q", out.Stderr)
	}

	strict := &Command{Path: path, Timeout: 5 * time.Second, FailOnStderr: true}
	if _, err := strict.Run(context.Background(), "scan", "a.log"); !errors.Is(err, core.ErrAdapterFailure) {
		t.Fatalf("expected stderr to be fatal, got %v", err)
	}
}

func TestRunMissingProgram(t *testing.T) {
	cmd := &Command{Path: filepath.Join(t.TempDir(), "nope"), Timeout: time.Second}
	if _, err := cmd.Run(context.Background(), "scan", "a.log"); !errors.Is(err, core.ErrAdapterFailure) {
		t.Fatalf("expected adapter failure, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	cmd := &Command{Path: script(t, "sleep 5"), Timeout: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := cmd.Run(ctx, "build", "2020-01-01")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, core.ErrTimeout) {
		t.Error("cancellation must not be reported as a timeout")
	}
}
