package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histogramCount(t *testing.T, reg prometheus.Gatherer, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var family *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == name {
			family = f
		}
	}
	require.NotNil(t, family, "metric %s not gathered", name)
	require.Len(t, family.GetMetric(), 1)
	return family.GetMetric()[0].GetHistogram().GetSampleCount()
}

func TestCollector_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveRun(OutcomeOK, 2*time.Second, 12, 40)
	c.ObserveRun(OutcomeUpstream, time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues(OutcomeUpstream)))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.DetectionsKept), "failed runs leave the last good values")
	assert.Equal(t, 40.0, testutil.ToFloat64(c.AffectedAreas))
	assert.Equal(t, uint64(2), histogramCount(t, reg, "firezips_run_duration_seconds"))
}

func TestCollector_FetchAndPostal(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	c.ObserveFetch("retryable")
	c.ObserveFetch("retryable")
	c.ObserveFetch("success")
	c.SetPostalAreas(41000)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.FetchAttempts.WithLabelValues("retryable")))
	assert.Equal(t, 41000.0, testutil.ToFloat64(c.PostalAreas))
}

func TestCollector_RegisterTwiceReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.ObserveFetch("success")
	assert.Equal(t, 1.0, testutil.ToFloat64(second.FetchAttempts.WithLabelValues("success")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveRun(OutcomeOK, time.Second, 1, 1)
		c.ObserveFetch("success")
		c.SetPostalAreas(1)
	})
}

func TestCollector_Handler(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	c.ObserveRun(OutcomeOK, time.Second, 3, 4)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `firezips_runs_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "firezips_affected_areas 4")
}
