package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the sync engine.
type Metrics struct {
	CyclesTotal     *prometheus.CounterVec // result: success | degraded | skipped
	CycleDuration   prometheus.Histogram
	RowsPushedTotal *prometheus.CounterVec // phase: create | update
	RowsPulledTotal prometheus.Counter
	DeferralsTotal  *prometheus.CounterVec // direction: push | pull
	FailuresTotal   *prometheus.CounterVec // phase, kind
	CursorTimestamp prometheus.Gauge
}

// NewMetrics creates and registers all engine metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tillsync",
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Total number of sync cycles by result",
		}, []string{"result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tillsync",
			Subsystem: "engine",
			Name:      "cycle_duration_seconds",
			Help:      "Histogram of sync cycle durations",
			Buckets:   prometheus.DefBuckets,
		}),
		RowsPushedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tillsync",
			Subsystem: "engine",
			Name:      "rows_pushed_total",
			Help:      "Total rows pushed to the remote store by phase",
		}, []string{"phase"}),
		RowsPulledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tillsync",
			Subsystem: "engine",
			Name:      "rows_pulled_total",
			Help:      "Total remote rows applied locally",
		}),
		DeferralsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tillsync",
			Subsystem: "engine",
			Name:      "deferrals_total",
			Help:      "Total rows deferred to a later cycle because a referenced row had no identifier mapping yet",
		}, []string{"direction"}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tillsync",
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Total per-entity failures by phase and kind",
		}, []string{"phase", "kind"}),
		CursorTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tillsync",
			Subsystem: "engine",
			Name:      "cursor_timestamp_seconds",
			Help:      "Current sync cursor as a Unix timestamp",
		}),
	}
}
