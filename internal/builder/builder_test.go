package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/colthorp/convocache/internal/cache"
	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/external"
	"github.com/colthorp/convocache/internal/logger"
)

func builderScript(t *testing.T, body string) *external.Command {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "cache-convocations-for-day.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return &external.Command{Path: path, Timeout: 5 * time.Second}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestArgs(t *testing.T) {
	got := Args("/raw", "/cache/2020-03-01.json.tmp", mustDate(t, "2020-03-01"))
	want := "/raw /cache/2020-03-01.json.tmp 2020-03-01 2020-03-02 2020-02-29"
	if strings.Join(got, " ") != want {
		t.Errorf("Args = %v, want %s", got, want)
	}
}

func TestCommandBuilderInstallsEntry(t *testing.T) {
	backend := cache.NewFilesystemBackend(filepath.Join(t.TempDir(), "cache"))
	// Write the args back as the entry so the whole contract is visible.
	cmd := builderScript(t, `printf '{"raw":"%s","date":"%s","next":"%s","prev":"%s"}' "$1" "$3" "$4" "$5" > "$2"`)

	b := NewCommandBuilder(cmd, "/raw/logs", backend, logger.Nop())
	day := mustDate(t, "2020-01-01")
	if err := b.Build(context.Background(), day); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	got, err := backend.Read(day)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := `{"raw":"/raw/logs","date":"2020-01-01","next":"2020-01-02","prev":"2019-12-31"}`
	if string(got) != want {
		t.Errorf("entry = %s, want %s", got, want)
	}
	if _, err := os.Stat(TempPath(backend, day)); !errors.Is(err, os.ErrNotExist) {
		t.Error("temp file left behind")
	}
}

func TestCommandBuilderStderrIsNotFatal(t *testing.T) {
	backend := cache.NewFilesystemBackend(t.TempDir())
	cmd := builderScript(t, `echo "progress: 50%" >&2; echo '[]' > "$2"`)

	if err := NewCommandBuilder(cmd, "/raw", backend, logger.Nop()).Build(context.Background(), mustDate(t, "2020-01-01")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
}

func TestCommandBuilderFailures(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		timeout     time.Duration
		wantTimeout bool
	}{
		{name: "non-zero exit", body: `echo '{"partial":' > "$2"; exit 1`},
		{name: "invalid JSON", body: `echo 'not json' > "$2"`},
		{name: "no output", body: `exit 0`},
		{name: "timeout", body: `echo '{}' > "$2"; sleep 5`, timeout: 100 * time.Millisecond, wantTimeout: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := cache.NewFilesystemBackend(t.TempDir())
			day := mustDate(t, "2020-01-01")
			if err := backend.Write(day, []byte(`{"old":true}`)); err != nil {
				t.Fatal(err)
			}

			cmd := builderScript(t, tt.body)
			if tt.timeout > 0 {
				cmd.Timeout = tt.timeout
			}

			err := NewCommandBuilder(cmd, "/raw", backend, logger.Nop()).Build(context.Background(), day)
			if !errors.Is(err, core.ErrAdapterFailure) {
				t.Fatalf("expected adapter failure, got %v", err)
			}
			if tt.wantTimeout && !errors.Is(err, core.ErrTimeout) {
				t.Errorf("expected timeout, got %v", err)
			}

			got, rerr := backend.Read(day)
			if rerr != nil || string(got) != `{"old":true}` {
				t.Errorf("existing entry changed: %s, %v", got, rerr)
			}
			if _, serr := os.Stat(TempPath(backend, day)); !errors.Is(serr, os.ErrNotExist) {
				t.Error("temp file left behind")
			}
		})
	}
}
