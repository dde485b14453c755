// Package cli implements the command-line interface for convocache.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/colthorp/convocache/internal/config"
	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/logger"
)

// Global flags
var (
	verbose       bool
	quiet         bool
	logFormat     string
	cacheDir      string
	rawLogsDir    string
	aggregatePath string
	scannerCmd    string
	builderCmd    string
	parallel      int
	scanTimeout   time.Duration
	buildTimeout  time.Duration
	metricsFile   string
)

// cfg is loaded from the environment and then overridden by any flags given.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "convocache",
	Short: "convocache – keep per-day convocation summaries in sync with raw logs",
	Long: `Incrementally rebuilds a per-day cache of convocation summaries from
append-only raw logs, then merges every day into one aggregate document.

Only days touched by new log content (and their neighbours) are rebuilt.`,
	Version:           core.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps failures to distinct statuses so wrappers can tell a broken
// log directory from a transient step failure.
func exitCode(err error) int {
	if errors.Is(err, core.ErrAppendOnlyViolation) {
		return 3
	}
	if errors.Is(err, core.ErrAdapterFailure) {
		return 2
	}
	return 1
}

func init() {
	// Persistent flags available to all commands
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	pf.BoolVar(&quiet, "quiet", false, "Only log warnings and errors")
	pf.StringVar(&logFormat, "log-format", "", "Log format: console or json")
	pf.StringVar(&cacheDir, "cache-dir", "", "Directory holding per-day entries and the last-seen-sizes snapshot")
	pf.StringVar(&rawLogsDir, "raw-logs-dir", "", "Directory of append-only raw logs")
	pf.StringVar(&aggregatePath, "aggregate", "", "Write the merged aggregate to this file")
	pf.StringVar(&scannerCmd, "scanner", "", "External range scanner command (default: built-in)")
	pf.StringVar(&builderCmd, "builder", "", "External day builder command")
	pf.IntVarP(&parallel, "parallel", "p", core.DefaultParallel, "Max scans or builds to run in parallel")
	pf.DurationVar(&scanTimeout, "scan-timeout", core.DefaultScanTimeout, "Timeout per range scan")
	pf.DurationVar(&buildTimeout, "build-timeout", core.DefaultBuildTimeout, "Timeout per day build")
	pf.StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format")
}

// setup loads configuration, applies flag overrides and initialises logging.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, loaded)
	cfg = loaded

	level := cfg.LogLevel
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "warn"
	}
	logger.Init(logger.Options{
		Level:        level,
		Format:       cfg.LogFormat,
		StaticFields: map[string]string{"app": "convocache"},
	})
	return nil
}

// applyFlags copies explicitly set flags over the environment configuration.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("cache-dir") {
		c.CacheDir = cacheDir
	}
	if changed("raw-logs-dir") {
		c.RawLogsDir = rawLogsDir
	}
	if changed("aggregate") {
		c.AggregatePath = aggregatePath
	}
	if changed("scanner") {
		c.ScannerCommand = scannerCmd
	}
	if changed("builder") {
		c.BuilderCommand = builderCmd
	}
	if changed("parallel") {
		c.Parallel = parallel
	}
	if changed("scan-timeout") {
		c.ScanTimeout = scanTimeout
	}
	if changed("build-timeout") {
		c.BuildTimeout = buildTimeout
	}
	if changed("metrics-file") {
		c.MetricsFile = metricsFile
	}
	if changed("log-format") {
		c.LogFormat = logFormat
	}
}
