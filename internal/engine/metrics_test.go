package engine

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fixtures/internal/ir"
)

func TestMetrics_RecordResolution(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	r, _ := newTestResolver(t, WithMetrics(m))
	register(t, r, "users", recipe("one", "SELECT 1 AS id"))

	_, err = r.Get(ctx, "users", "one")
	require.NoError(t, err)
	_, err = r.Get(ctx, "users", "one")
	require.NoError(t, err)
	_, err = r.Get(ctx, "users", "missing")
	require.Error(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.misses.WithLabelValues("users")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.hits.WithLabelValues("users")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.executions.WithLabelValues("users")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.failures.WithLabelValues("NOT_REGISTERED")))
	assert.Equal(t, 1, promtest.CollectAndCount(m.duration))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.hit(recipeKey())
		m.miss(recipeKey())
		m.failed(nil)
	})
}

func recipeKey() ir.FixtureKey { return ir.Key("users", "one") }
