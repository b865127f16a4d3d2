package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tillsync/tillsync/internal/registry"
	"github.com/tillsync/tillsync/internal/remote"
	"github.com/tillsync/tillsync/internal/store"
)

// DefaultPushBatchSize caps how many creates go into one upsert batch.
// The remote batch is atomic, so an oversized batch turns one bad row into
// a large retry.
const DefaultPushBatchSize = 500

// Engine is the sync orchestrator. It exclusively owns the sync cursor and
// the single-flight slot; nothing else advances the cursor or starts cycles.
//
// Thread-safety model:
//   - TriggerSync(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - RunCycle(): safe from any goroutine, but rejects overlap
type Engine struct {
	store   *store.Store
	remote  remote.Client
	reg     *registry.Registry
	policy  ConflictPolicy
	metrics *Metrics

	pushBatchSize int
	now           func() time.Time

	trigger chan struct{}
	busy    atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConflictPolicy overrides the default last-pull-wins policy.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMetrics registers the engine's metrics on the given registerer.
// Without this option metrics land on a private throwaway registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = NewMetrics(reg) }
}

// WithPushBatchSize overrides DefaultPushBatchSize.
func WithPushBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pushBatchSize = n
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over an opened store and a remote client.
func New(s *store.Store, rc remote.Client, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		remote:        rc,
		reg:           s.Registry(),
		policy:        LastPullWins{},
		pushBatchSize: DefaultPushBatchSize,
		now:           time.Now,
		// Buffer of 1 coalesces triggers arriving mid-cycle into one
		// follow-up cycle.
		trigger: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics(prometheus.NewRegistry())
	}

	return e
}

// Policy returns the active conflict policy.
func (e *Engine) Policy() ConflictPolicy { return e.policy }

// TriggerSync requests a cycle. Safe from any goroutine; triggers arriving
// while a cycle is in progress coalesce into at most one pending follow-up.
func (e *Engine) TriggerSync() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run executes sync cycles until the context is cancelled: one cycle
// immediately on start, then one per interval tick or trigger, never
// overlapping. Must be called from exactly one goroutine.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	slog.Info("sync engine starting", "interval", interval, "policy", e.policy.Name())

	// Arm the trigger so the first select iteration runs a cycle right away
	// rather than idling until the first tick.
	e.TriggerSync()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync engine stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		case <-e.trigger:
		}

		report, err := e.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("sync engine stopping", "reason", ctx.Err())
				return ctx.Err()
			}
			// Per-entity errors never reach here; this is a cycle-level
			// failure (connectivity, cursor read) and the next tick retries.
			slog.Warn("sync cycle failed", "error", err)
			continue
		}
		logReport(report)
	}
}

// RunCycle executes one complete cycle: push creates, push updates, pull
// changes, in dependency order. Per-entity failures are collected into the
// report, not returned; only cycle-level failures (connectivity probe,
// cursor access, cancellation) produce an error.
func (e *Engine) RunCycle(ctx context.Context) (*Report, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer e.busy.Store(false)

	report := &Report{
		Cycle:   uuid.Must(uuid.NewV7()).String(),
		Started: e.now(),
	}
	log := slog.With("cycle", report.Cycle)

	if err := e.remote.Ping(ctx); err != nil {
		e.metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		log.Warn("skipping cycle, remote unreachable", "error", err)
		return nil, err
	}

	log.Debug("cycle starting", "phase", PhasePushingCreates)
	e.pushCreates(ctx, log, report)

	log.Debug("cycle phase", "phase", PhasePushingUpdates)
	e.pushUpdates(ctx, log, report)

	log.Debug("cycle phase", "phase", PhasePulling)
	if err := e.pull(ctx, log, report); err != nil {
		// Cursor access failed or the cycle was cancelled; per-entity pull
		// failures land in report.Failures instead.
		return nil, err
	}

	report.Finished = e.now()
	result := "success"
	if len(report.Failures) > 0 {
		result = "degraded"
	}
	e.metrics.CyclesTotal.WithLabelValues(result).Inc()
	e.metrics.CycleDuration.Observe(report.Finished.Sub(report.Started).Seconds())
	e.metrics.CursorTimestamp.Set(float64(report.Cursor.Unix()))

	return report, nil
}

// recordFailure isolates a per-entity failure: log, count, continue.
func (e *Engine) recordFailure(log *slog.Logger, report *Report, phase Phase, entity string, err error) {
	kind := classify(err)
	report.Failures = append(report.Failures, Failure{
		Phase:  phase,
		Entity: entity,
		Kind:   string(kind),
		Err:    err,
	})
	e.metrics.FailuresTotal.WithLabelValues(phase.String(), string(kind)).Inc()

	log.Error("entity batch failed",
		"phase", phase,
		"entity", entity,
		"kind", string(kind),
		"error", err,
	)
}

// cancelled checks for cooperative cancellation between entity batches.
// An in-flight batch always completes; the cycle halts at the next boundary.
func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func logReport(r *Report) {
	slog.Info("sync cycle complete",
		"cycle", r.Cycle,
		"duration", r.Finished.Sub(r.Started),
		"created", r.Created,
		"updated", r.Updated,
		"pulled", r.Pulled,
		"skipped", r.Skipped,
		"deferred_push", r.DeferredPush,
		"deferred_pull", r.DeferredPull,
		"failures", len(r.Failures),
		"cursor", r.Cursor,
		"cursor_advanced", r.CursorAdvanced,
	)
}
