package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/colthorp/convocache/internal/builder"
	"github.com/colthorp/convocache/internal/cache"
	"github.com/colthorp/convocache/internal/config"
	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/external"
	"github.com/colthorp/convocache/internal/growth"
	"github.com/colthorp/convocache/internal/logger"
	"github.com/colthorp/convocache/internal/output"
	"github.com/colthorp/convocache/internal/refresh"
	"github.com/colthorp/convocache/internal/scanner"
)

func init() {
	// Add all subcommands
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(scanRangeCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// refreshCmd rebuilds stale entries, commits the snapshot and materializes the aggregate
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild cache entries touched by new log content and write the aggregate",
	Args:  cobra.NoArgs,
	RunE:  handleRefresh,
}

// planCmd is a dry run of refresh
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which dates a refresh would rebuild, without building anything",
	Args:  cobra.NoArgs,
	RunE:  handlePlan,
}

// aggregateCmd materializes the aggregate from the current cache
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Merge every cache entry into one document (to --aggregate, or stdout)",
	Args:  cobra.NoArgs,
	RunE:  handleAggregate,
}

// scanRangeCmd exposes the range scanner with the external scanner's contract
var scanRangeCmd = &cobra.Command{
	Use:   "scan-range [offset] [path]",
	Short: "Print the min and max entry dates after a byte offset of a log",
	Long: `Print "MIN MAX" (YYYY-MM-DD) for the entries stored after OFFSET bytes
of the log at PATH, or nothing when there are none.

The output format is the one expected from --scanner commands, so
"convocache scan-range" can itself be used as one.`,
	Args: cobra.ExactArgs(2),
	RunE: handleScanRange,
}

// mcpCmd starts the MCP server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI integration",
	Args:  cobra.NoArgs,
	RunE:  handleMCP,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("convocache %s\n", core.Version)
	},
}

func handleRefresh(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateRefresh(); err != nil {
		return err
	}
	m, err := newManager(cfg, true)
	if err != nil {
		return err
	}

	res, err := m.Run(cmd.Context())
	writeMetrics(m)
	if err != nil {
		return err
	}

	output.PrintJSON(output.NewReport(res))
	return nil
}

func handlePlan(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(false); err != nil {
		return err
	}
	m, err := newManager(cfg, false)
	if err != nil {
		return err
	}

	res, err := m.Plan(cmd.Context())
	writeMetrics(m)
	if err != nil {
		return err
	}

	output.PrintJSON(output.NewReport(res))
	return nil
}

func handleAggregate(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateCache(); err != nil {
		return err
	}

	// Only the backend is needed to materialize.
	m := refresh.NewManager(refresh.Options{
		Backend:       cache.NewFilesystemBackend(cfg.CacheDir),
		AggregatePath: cfg.AggregatePath,
		Logger:        *logger.Named("cli"),
	})
	agg, err := m.Materialize()
	writeMetrics(m)
	if err != nil {
		return err
	}

	if cfg.AggregatePath == "" {
		return output.WriteAggregate(os.Stdout, agg)
	}
	logger.Named("cli").Info().
		Int("entries", len(agg)).
		Str("path", cfg.AggregatePath).
		Msg("Wrote aggregate")
	return nil
}

func handleScanRange(cmd *cobra.Command, args []string) error {
	offset, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || offset < 0 {
		return fmt.Errorf("invalid offset %q (expected a non-negative byte count)", args[0])
	}

	sc, err := newScanner(cfg)
	if err != nil {
		return err
	}
	res, err := sc.Scan(cmd.Context(), args[1], offset)
	if err != nil {
		return err
	}

	if res.Found {
		fmt.Println(scanner.Format(res))
	}
	return nil
}

func handleMCP(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(false); err != nil {
		return err
	}
	srv := newMCPServer(os.Stdin, os.Stdout, cfg, *logger.Named("mcp"))
	return srv.Serve(cmd.Context())
}

// newScanner picks the external scanner when one is configured, else the built-in one.
func newScanner(c *config.Config) (scanner.Scanner, error) {
	if c.ScannerCommand == "" {
		return scanner.NewNativeScanner(c.ScanTimeout), nil
	}
	cmd, err := external.Parse(c.ScannerCommand, c.ScanTimeout)
	if err != nil {
		return nil, fmt.Errorf("scanner command: %w", err)
	}
	return scanner.NewCommandScanner(cmd), nil
}

// newManager wires the refresh pipeline from c. Without withBuilder the
// manager can plan and materialize but not refresh.
func newManager(c *config.Config, withBuilder bool) (*refresh.Manager, error) {
	log := *logger.Get()

	sc, err := newScanner(c)
	if err != nil {
		return nil, err
	}
	det, err := growth.NewDetector(c.RawLogsDir, c.LogSuffix, sc, c.Parallel, log)
	if err != nil {
		return nil, err
	}

	backend := cache.NewFilesystemBackend(c.CacheDir)
	opts := refresh.Options{
		Detector:      det,
		Backend:       backend,
		Snapshots:     cache.NewFileSnapshot(c.CacheDir),
		AggregatePath: c.AggregatePath,
		Parallel:      c.Parallel,
		Logger:        log,
	}

	if withBuilder {
		cmd, err := external.Parse(c.BuilderCommand, c.BuildTimeout)
		if err != nil {
			return nil, fmt.Errorf("builder command: %w", err)
		}
		opts.Builder = builder.NewCommandBuilder(cmd, c.RawLogsDir, backend, log)
	}

	return refresh.NewManager(opts), nil
}

// writeMetrics exports the run's metrics when a metrics file is configured.
// Failing to write them never fails the command.
func writeMetrics(m *refresh.Manager) {
	if cfg == nil || cfg.MetricsFile == "" {
		return
	}
	if err := m.Metrics().WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Named("cli").Warn().Err(err).Str("path", cfg.MetricsFile).Msg("Could not write metrics")
	}
}
