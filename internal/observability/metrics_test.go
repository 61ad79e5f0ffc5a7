package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------
// Counter Tests
// -----------------------------------------------------------------------

func TestCounter_IncAndAdd(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("test_counter", "A test counter", nil)

	assert.Equal(t, 0.0, c.Value())

	c.Inc()
	assert.Equal(t, 1.0, c.Value())

	c.Inc()
	c.Inc()
	assert.Equal(t, 3.0, c.Value())

	c.Add(2.5)
	assert.Equal(t, 5.5, c.Value())

	c.Add(0.001)
	assert.InDelta(t, 5.501, c.Value(), 0.0001)

	// Negative delta should be ignored.
	c.Add(-10)
	assert.InDelta(t, 5.501, c.Value(), 0.0001)

	// Verify Entry().
	entry := c.Entry()
	assert.Equal(t, "test_counter", entry.Name)
	assert.Equal(t, MetricCounter, entry.Type)
	assert.Equal(t, "A test counter", entry.Help)
	assert.InDelta(t, 5.501, entry.Value, 0.0001)
}

func TestCounter_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("concurrent_counter", "counter for concurrency test", nil)

	var wg sync.WaitGroup
	n := 1000
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(n), c.Value())
}

// -----------------------------------------------------------------------
// Gauge Tests
// -----------------------------------------------------------------------

func TestGauge_SetAndAdd(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("test_gauge", "A test gauge", nil)

	assert.Equal(t, 0.0, g.Value())

	g.Set(42.5)
	assert.Equal(t, 42.5, g.Value())

	g.Inc()
	assert.Equal(t, 43.5, g.Value())

	g.Dec()
	assert.Equal(t, 42.5, g.Value())

	g.Add(-50)
	assert.Equal(t, -7.5, g.Value())

	g.Set(0)
	assert.Equal(t, 0.0, g.Value())

	// Verify Entry().
	entry := g.Entry()
	assert.Equal(t, "test_gauge", entry.Name)
	assert.Equal(t, MetricGauge, entry.Type)
}

func TestGauge_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("concurrent_gauge", "gauge for concurrency test", nil)

	var wg sync.WaitGroup
	n := 1000
	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			g.Inc()
		}()
		go func() {
			defer wg.Done()
			g.Dec()
		}()
	}
	wg.Wait()

	// After equal increments and decrements, value should be 0.
	assert.Equal(t, 0.0, g.Value())
}

// -----------------------------------------------------------------------
// Registry Tests
// -----------------------------------------------------------------------

func TestRegistry_DuplicateNameReturnsExisting(t *testing.T) {
	r := NewRegistry()

	c1 := r.NewCounter("dup_counter", "first", nil)
	c1.Inc()
	c2 := r.NewCounter("dup_counter", "second", nil)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1.0, c2.Value())

	g1 := r.NewGauge("dup_gauge", "first", nil)
	g1.Set(7)
	g2 := r.NewGauge("dup_gauge", "second", nil)

	assert.Same(t, g1, g2)
	assert.Equal(t, 7.0, g2.Value())
}

func TestRegistry_GetByName(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("known_counter", "help", nil)

	assert.NotNil(t, r.GetCounter("known_counter"))
	assert.Nil(t, r.GetCounter("unknown_counter"))
	assert.Nil(t, r.GetGauge("known_counter"))
}

func TestRegistry_AllMetricsSorted(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("z_counter", "", nil)
	r.NewCounter("a_counter", "", nil)
	r.NewGauge("m_gauge", "", nil)

	entries := r.AllMetrics()
	require.Len(t, entries, 3)

	// Counters first (sorted), then gauges.
	assert.Equal(t, "a_counter", entries[0].Name)
	assert.Equal(t, "z_counter", entries[1].Name)
	assert.Equal(t, "m_gauge", entries[2].Name)
}

func TestRegistry_LabelsAreCopied(t *testing.T) {
	r := NewRegistry()
	labels := map[string]string{"chain": "solana"}
	c := r.NewCounter("labeled_counter", "", labels)

	labels["chain"] = "ethereum"
	assert.Equal(t, "solana", c.Entry().Labels["chain"])
}

// -----------------------------------------------------------------------
// Prometheus Exporter Tests
// -----------------------------------------------------------------------

func TestPrometheusExporter_Format(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("tokenwatch_evaluations_total", "Total listing evaluations", nil)
	c.Add(42)
	g := r.NewGauge("tokenwatch_watched_tokens", "Tokens currently watched", map[string]string{"chain": "solana"})
	g.Set(7)

	out := NewPrometheusExporter(r).Format()

	assert.Contains(t, out, "# HELP tokenwatch_evaluations_total Total listing evaluations\n")
	assert.Contains(t, out, "# TYPE tokenwatch_evaluations_total counter\n")
	assert.Contains(t, out, "tokenwatch_evaluations_total 42\n")

	assert.Contains(t, out, "# TYPE tokenwatch_watched_tokens gauge\n")
	assert.Contains(t, out, `tokenwatch_watched_tokens{chain="solana"} 7`+"\n")
}

func TestPrometheusExporter_ServeHTTP(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("served_counter", "help text", nil).Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	NewPrometheusExporter(r).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), "served_counter 1\n")
}

func TestPrometheusExporter_EmptyRegistry(t *testing.T) {
	out := NewPrometheusExporter(NewRegistry()).Format()
	assert.Empty(t, out)
}

// -----------------------------------------------------------------------
// Health Monitor Tests
// -----------------------------------------------------------------------

func TestHealthMonitor_AggregatesWorstStatus(t *testing.T) {
	m := NewHealthMonitor()
	m.Register("postgres", func(_ context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy}
	})
	m.Register("clickhouse", func(_ context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "slow inserts"}
	})

	health := m.Check(context.Background())

	assert.Equal(t, StatusDegraded, health.Status)
	require.Len(t, health.Components, 2)
	assert.Equal(t, StatusHealthy, health.Components["postgres"].Status)
	assert.Equal(t, "slow inserts", health.Components["clickhouse"].Message)
	assert.Equal(t, "clickhouse", health.Components["clickhouse"].Name)
}

func TestHealthMonitor_UnhealthyDominates(t *testing.T) {
	m := NewHealthMonitor()
	m.Register("a", func(_ context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded}
	})
	m.Register("b", func(_ context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUnhealthy}
	})

	assert.Equal(t, StatusUnhealthy, m.Check(context.Background()).Status)
}

func TestHealthMonitor_NoChecksIsHealthy(t *testing.T) {
	m := NewHealthMonitor()
	health := m.Check(context.Background())

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Empty(t, health.Components)
}

func TestHealthMonitor_ComponentStatus(t *testing.T) {
	m := NewHealthMonitor()
	m.Register("postgres", func(_ context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy}
	})

	_, ok := m.ComponentStatus("postgres")
	assert.False(t, ok, "no result before the first check")

	m.Check(context.Background())

	h, ok := m.ComponentStatus("postgres")
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, h.Status)
	assert.False(t, h.LastChecked.IsZero())
}

func TestPingCheck(t *testing.T) {
	healthy := PingCheck(func(_ context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, healthy(context.Background()).Status)

	down := PingCheck(func(_ context.Context) error { return errors.New("connection refused") })
	h := down(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, "connection refused", h.Message)
}
