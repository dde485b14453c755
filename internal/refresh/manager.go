// Package refresh brings the per-day cache up to date with the raw logs.
//
// # Run
//
// A refresh is a single pass through strictly sequential phases:
//
//	SCAN -> [no new content: SKIP_BUILD] -> PLAN -> BUILD -> COMMIT -> MATERIALIZE
//
// SCAN asks the growth detector for the span of dates with new entries.
// PLAN widens it to every date whose entry could depend on that content.
// BUILD runs the day builder for the planned dates with bounded parallelism;
// the first failure cancels the builds still running. COMMIT saves the sizes
// observed during SCAN as the new snapshot. MATERIALIZE merges every entry
// into the aggregate document.
//
// # Recovery
//
// Any failure before COMMIT leaves the snapshot untouched, so the next run
// sees at least the same new content and plans at least the same dates.
// Entries rebuilt by an aborted run stay in place; they are valid and will be
// rebuilt again. There is no retry within a run.
//
// Two concurrent runs against the same cache directory are not supported.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/colthorp/convocache/internal/builder"
	"github.com/colthorp/convocache/internal/cache"
	"github.com/colthorp/convocache/internal/core"
	"github.com/colthorp/convocache/internal/growth"
	"github.com/colthorp/convocache/internal/metrics"
	"github.com/colthorp/convocache/internal/plan"
)

// Phase names, used in logs and metrics.
const (
	PhaseScan        = "scan"
	PhasePlan        = "plan"
	PhaseBuild       = "build"
	PhaseCommit      = "commit"
	PhaseMaterialize = "materialize"
)

// Detector finds the new-content range since a snapshot.
type Detector interface {
	Detect(ctx context.Context, snap cache.Snapshot) (growth.Growth, error)
}

// Options configures a Manager. Detector, Builder, Backend and Snapshots are required.
type Options struct {
	Detector  Detector
	Builder   builder.Builder
	Backend   cache.Backend
	Snapshots cache.SnapshotStore

	// AggregatePath is where Run writes the aggregate; empty skips writing it.
	AggregatePath string

	Parallel int
	Metrics  *metrics.RefreshMetrics
	Logger   zerolog.Logger
}

// Manager runs refreshes over one cache directory.
type Manager struct {
	detector      Detector
	builder       builder.Builder
	backend       cache.Backend
	snapshots     cache.SnapshotStore
	aggregatePath string
	parallel      int
	metrics       *metrics.RefreshMetrics
	logger        zerolog.Logger
}

// NewManager creates a refresh manager.
// If Metrics is nil a private set is created so callers never need to check.
func NewManager(opts Options) *Manager {
	if opts.Parallel <= 0 {
		opts.Parallel = core.DefaultParallel
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRefreshMetrics()
	}
	return &Manager{
		detector:      opts.Detector,
		builder:       opts.Builder,
		backend:       opts.Backend,
		snapshots:     opts.Snapshots,
		aggregatePath: opts.AggregatePath,
		parallel:      opts.Parallel,
		metrics:       opts.Metrics,
		logger:        opts.Logger.With().Str("component", "refresh").Logger(),
	}
}

// Metrics returns the metrics the manager records into.
func (m *Manager) Metrics() *metrics.RefreshMetrics {
	return m.metrics
}

// Result describes one refresh or dry run.
type Result struct {
	RunID string

	// Found is false when no raw log gained dated entries.
	Found bool
	Range core.DateRange

	Plan    plan.Plan
	Scanned int

	// Built counts the entries successfully rebuilt this run.
	Built int

	// Committed is true when the snapshot was saved.
	Committed bool

	// Aggregate is set once MATERIALIZE ran.
	Aggregate cache.Aggregate

	Elapsed time.Duration
}

// Run refreshes the cache and then materializes the aggregate.
// A failed refresh returns before materializing.
func (m *Manager) Run(ctx context.Context) (Result, error) {
	res, err := m.Refresh(ctx)
	if err != nil {
		return res, err
	}

	log := m.logger.With().Str("run_id", res.RunID).Logger()
	agg, err := timed(m, PhaseMaterialize, func() (cache.Aggregate, error) {
		return m.Materialize()
	})
	if err != nil {
		return res, err
	}
	res.Aggregate = agg

	log.Info().
		Int("entries", len(agg)).
		Str("path", m.aggregatePath).
		Msg("Materialized aggregate")
	return res, nil
}

// Refresh runs SCAN through COMMIT. It never materializes.
func (m *Manager) Refresh(ctx context.Context) (res Result, err error) {
	start := time.Now()
	res.RunID = uuid.NewString()
	log := m.logger.With().Str("run_id", res.RunID).Logger()

	outcome := metrics.OutcomeFailed
	defer func() {
		res.Elapsed = time.Since(start)
		m.metrics.RunsTotal.WithLabelValues(outcome).Inc()
		if err == nil {
			m.metrics.LastSuccessTime.SetToCurrentTime()
		}
	}()

	prev, g, p, err := m.scanAndPlan(ctx, &res, log)
	if err != nil {
		return res, err
	}

	if !g.Found {
		// Logs may have grown without dated entries; advance past those bytes.
		if !g.Sizes.Equal(prev) {
			if err := m.commit(g.Sizes, log); err != nil {
				return res, err
			}
			res.Committed = true
		}
		outcome = metrics.OutcomeNoop
		log.Info().Msg("No new log entries")
		return res, nil
	}

	built, err := m.build(ctx, p, log)
	res.Built = built
	if err != nil {
		log.Error().Err(err).
			Int("built", built).
			Int("planned", p.Len()).
			Msg("Build failed; snapshot not committed")
		return res, err
	}

	if err := m.commit(g.Sizes, log); err != nil {
		return res, err
	}
	res.Committed = true
	outcome = metrics.OutcomeBuilt

	log.Info().
		Str("range", g.Range.String()).
		Int("built", built).
		Msg("Refresh complete")
	return res, nil
}

// Plan runs SCAN and PLAN only: it reports what Refresh would build without
// building anything or touching the snapshot.
func (m *Manager) Plan(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}
	log := m.logger.With().Str("run_id", res.RunID).Bool("dry_run", true).Logger()

	_, _, _, err := m.scanAndPlan(ctx, &res, log)
	res.Elapsed = time.Since(start)

	outcome := metrics.OutcomeDryRun
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	m.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	return res, err
}

// Materialize merges every current entry and, if an aggregate path is
// configured, writes it there.
func (m *Manager) Materialize() (cache.Aggregate, error) {
	agg, err := cache.Materialize(m.backend)
	if err != nil {
		return nil, err
	}
	m.metrics.CacheEntries.Set(float64(len(agg)))

	if m.aggregatePath != "" {
		if err := agg.WriteFile(m.aggregatePath); err != nil {
			return nil, fmt.Errorf("write aggregate: %w", err)
		}
	}
	return agg, nil
}

// scanAndPlan loads the snapshot, detects growth and plans the rebuild,
// filling res as it goes.
func (m *Manager) scanAndPlan(ctx context.Context, res *Result, log zerolog.Logger) (cache.Snapshot, growth.Growth, plan.Plan, error) {
	prev, err := m.snapshots.Load()
	if err != nil {
		return nil, growth.Growth{}, plan.Plan{}, fmt.Errorf("load snapshot: %w", err)
	}

	g, err := timed(m, PhaseScan, func() (growth.Growth, error) {
		return m.detector.Detect(ctx, prev)
	})
	if err != nil {
		var aerr *core.AppendOnlyError
		if errors.As(err, &aerr) {
			log.Error().Str("kind", string(aerr.Kind)).Strs("paths", aerr.Paths).Msg("Raw logs are not append-only")
		}
		return prev, g, plan.Plan{}, err
	}
	res.Found, res.Range, res.Scanned = g.Found, g.Range, len(g.Scanned)
	m.metrics.ScannedFiles.Set(float64(len(g.Scanned)))

	if !g.Found {
		m.setPlanned(plan.Plan{})
		return prev, g, plan.Plan{}, nil
	}

	p, err := timed(m, PhasePlan, func() (plan.Plan, error) {
		existing, err := m.backend.Dates()
		if err != nil {
			return plan.Plan{}, fmt.Errorf("list cache entries: %w", err)
		}
		return plan.Build(g.Range, g.Found, existing), nil
	})
	if err != nil {
		return prev, g, p, err
	}
	res.Plan = p
	m.setPlanned(p)

	log.Info().
		Str("range", g.Range.String()).
		Int("scanned", len(g.Scanned)).
		Int("planned", p.Len()).
		Int("rebuild", len(p.Rebuild)).
		Msg("Planned cache rebuild")
	return prev, g, p, nil
}

// build runs the builder for every planned date, at most m.parallel at a time.
// The first failure cancels the rest; the count of successful builds is returned either way.
func (m *Manager) build(ctx context.Context, p plan.Plan, log zerolog.Logger) (int, error) {
	start := time.Now()
	defer func() { m.metrics.ObservePhase(PhaseBuild, time.Since(start)) }()

	ok := make([]bool, p.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)

	for i, day := range p.Dates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := m.builder.Build(gctx, day); err != nil {
				m.metrics.BuildsTotal.WithLabelValues(metrics.BuildFailed).Inc()
				return fmt.Errorf("build %s: %w", core.FormatDate(day), err)
			}
			m.metrics.BuildsTotal.WithLabelValues(metrics.BuildOK).Inc()
			ok[i] = true
			log.Debug().Str("date", core.FormatDate(day)).Msg("Rebuilt entry")
			return nil
		})
	}
	err := g.Wait()

	built := 0
	for _, b := range ok {
		if b {
			built++
		}
	}
	return built, err
}

func (m *Manager) commit(sizes cache.Snapshot, log zerolog.Logger) error {
	start := time.Now()
	if err := m.snapshots.Save(sizes); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	m.metrics.ObservePhase(PhaseCommit, time.Since(start))
	log.Debug().Int("files", len(sizes)).Msg("Committed last-seen sizes")
	return nil
}

func (m *Manager) setPlanned(p plan.Plan) {
	m.metrics.PlannedDates.WithLabelValues("rebuild").Set(float64(len(p.Rebuild)))
	m.metrics.PlannedDates.WithLabelValues("new").Set(float64(p.Len() - len(p.Rebuild)))
}

// timed runs fn and records its duration as phase.
func timed[T any](m *Manager, phase string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	m.metrics.ObservePhase(phase, time.Since(start))
	return v, err
}
