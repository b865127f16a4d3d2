package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleRecordsMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	eng, s, f := newTestEngine(t, WithMetrics(promReg))
	ctx := context.Background()

	_, err := s.CreateLocal(ctx, "product_groups", map[string]any{"name": "Drinks"}, time.Now().UTC())
	require.NoError(t, err)
	f.seed("product_groups", "grp-1", map[string]any{"name": "Snacks"})

	_, err = eng.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(eng.metrics.CyclesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(eng.metrics.RowsPushedTotal.WithLabelValues("create")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(eng.metrics.RowsPulledTotal), 1.0)
}

func TestSkippedCycleMetric(t *testing.T) {
	promReg := prometheus.NewRegistry()
	eng, _, f := newTestEngine(t, WithMetrics(promReg))

	f.pingErr = transientErr("ping")
	_, err := eng.RunCycle(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(eng.metrics.CyclesTotal.WithLabelValues("skipped")))
}
