// Package exporter exposes pipeline metrics for Prometheus scraping:
// registry lookups, access decisions, scans, and endpoint counts.
package exporter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter holds the metric vectors and their registry. It
// implements the registry's and RBAC engine's metrics hooks.
type PrometheusExporter struct {
	registry *prometheus.Registry

	lookupsTotal    *prometheus.CounterVec
	lookupDuration  *prometheus.HistogramVec
	decisionsTotal  *prometheus.CounterVec
	decisionLatency *prometheus.HistogramVec
	scansTotal      *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	endpointCount   prometheus.Gauge
}

// PrometheusConfig configures the exporter.
type PrometheusConfig struct {
	// Prefix is added to all metric names (default: "routeforge").
	Prefix string

	// Buckets for duration histograms, in seconds.
	Buckets []float64

	// GoMetrics also registers the default Go and process collectors.
	GoMetrics bool
}

// DefaultPrometheusBuckets returns default histogram buckets.
func DefaultPrometheusBuckets() []float64 {
	return []float64{0.000001, 0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
}

// NewPrometheusExporter creates an exporter with its own registry.
func NewPrometheusExporter(cfg PrometheusConfig) *PrometheusExporter {
	if cfg.Prefix == "" {
		cfg.Prefix = "routeforge"
	}
	if cfg.Buckets == nil {
		cfg.Buckets = DefaultPrometheusBuckets()
	}

	reg := prometheus.NewRegistry()

	e := &PrometheusExporter{registry: reg}

	e.lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: cfg.Prefix + "_lookups_total",
			Help: "Total number of endpoint path lookups",
		},
		[]string{"method", "matched", "cache"},
	)

	e.lookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    cfg.Prefix + "_lookup_duration_seconds",
			Help:    "Endpoint lookup duration in seconds",
			Buckets: cfg.Buckets,
		},
		[]string{"method"},
	)

	e.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: cfg.Prefix + "_access_decisions_total",
			Help: "Total number of access-control decisions",
		},
		[]string{"decision", "cache"},
	)

	e.decisionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    cfg.Prefix + "_access_decision_duration_seconds",
			Help:    "Access decision evaluation duration in seconds",
			Buckets: cfg.Buckets,
		},
		[]string{"decision"},
	)

	e.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: cfg.Prefix + "_scans_total",
			Help: "Total number of convention scans",
		},
		[]string{"outcome"},
	)

	e.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    cfg.Prefix + "_scan_duration_seconds",
			Help:    "Convention scan duration in seconds",
			Buckets: cfg.Buckets,
		},
	)

	e.endpointCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: cfg.Prefix + "_endpoints",
			Help: "Number of registered endpoints",
		},
	)

	reg.MustRegister(
		e.lookupsTotal,
		e.lookupDuration,
		e.decisionsTotal,
		e.decisionLatency,
		e.scansTotal,
		e.scanDuration,
		e.endpointCount,
	)

	if cfg.GoMetrics {
		reg.MustRegister(prometheus.NewGoCollector())
		reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	return e
}

// Name returns the exporter name.
func (e *PrometheusExporter) Name() string {
	return "prometheus"
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveLookup records one registry path lookup.
func (e *PrometheusExporter) ObserveLookup(method string, matched, cacheHit bool, duration time.Duration) {
	e.lookupsTotal.With(prometheus.Labels{
		"method":  method,
		"matched": strconv.FormatBool(matched),
		"cache":   cacheLabel(cacheHit),
	}).Inc()
	e.lookupDuration.With(prometheus.Labels{"method": method}).Observe(duration.Seconds())
}

// ObserveDecision records one access-control decision.
func (e *PrometheusExporter) ObserveDecision(decision string, cacheHit bool, duration time.Duration) {
	e.decisionsTotal.With(prometheus.Labels{
		"decision": decision,
		"cache":    cacheLabel(cacheHit),
	}).Inc()
	e.decisionLatency.With(prometheus.Labels{"decision": decision}).Observe(duration.Seconds())
}

// ObserveScan records one convention scan.
func (e *PrometheusExporter) ObserveScan(err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.scansTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
	if err == nil {
		e.scanDuration.Observe(duration.Seconds())
	}
}

// SetEndpointCount updates the registered endpoint gauge.
func (e *PrometheusExporter) SetEndpointCount(n int) {
	e.endpointCount.Set(float64(n))
}

// Registry returns the underlying Prometheus registry, for custom
// metrics.
func (e *PrometheusExporter) Registry() *prometheus.Registry {
	return e.registry
}

func cacheLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
