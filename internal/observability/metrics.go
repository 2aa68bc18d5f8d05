// Package observability registers the Prometheus metrics for pipeline runs
// and upstream fetches.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid_argument"
	OutcomeParse      = "parse_error"
	OutcomeUpstream   = "upstream_unavailable"
	OutcomeUnexpected = "error"
)

// Collector bundles the firezips metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	DetectionsKept prometheus.Gauge
	AffectedAreas  prometheus.Gauge
	PostalAreas    prometheus.Gauge
	FetchAttempts  *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against one registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "firezips_runs_total",
		Help: "Pipeline runs, labeled by outcome.",
	}, []string{"outcome"}), "firezips_runs_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "firezips_run_duration_seconds",
		Help:    "Wall time of a pipeline run, fetch included.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}), "firezips_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	kept, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "firezips_detections_kept",
		Help: "Detections that passed the region filter in the last successful run.",
	}), "firezips_detections_kept")
	if err != nil {
		return nil, err
	}

	affected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "firezips_affected_areas",
		Help: "Postal areas within the radius of a detection in the last successful run.",
	}), "firezips_affected_areas")
	if err != nil {
		return nil, err
	}

	postal, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "firezips_postal_areas",
		Help: "Rows in the loaded postal code reference table.",
	}), "firezips_postal_areas")
	if err != nil {
		return nil, err
	}

	fetches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "firezips_fetch_attempts_total",
		Help: "Upstream fetch attempts, labeled by outcome.",
	}, []string{"outcome"}), "firezips_fetch_attempts_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Runs:           runs,
		RunDuration:    duration,
		DetectionsKept: kept,
		AffectedAreas:  affected,
		PostalAreas:    postal,
		FetchAttempts:  fetches,
	}, nil
}

// ObserveRun records one finished pipeline run.
func (c *Collector) ObserveRun(outcome string, elapsed time.Duration, detections, affected int) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(outcome).Inc()
	c.RunDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		c.DetectionsKept.Set(float64(detections))
		c.AffectedAreas.Set(float64(affected))
	}
}

// SetPostalAreas records the reference table size.
func (c *Collector) SetPostalAreas(n int) {
	if c == nil {
		return
	}
	c.PostalAreas.Set(float64(n))
}

// ObserveFetch records one upstream attempt. It matches the upstream
// client's observer callback.
func (c *Collector) ObserveFetch(outcome string) {
	if c == nil {
		return
	}
	c.FetchAttempts.WithLabelValues(outcome).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
