// Package metrics holds Prometheus instruments that are used across
// sqlscope.  All collectors are registered with the global registry, so the
// promhttp handler mounted at /internal/metrics exposes them without further
// wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// ConfigOpsTotal counts config manager operations by op (load, reload,
	// update) and result.
	ConfigOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscope_config_operations_total",
			Help: "Configuration load, reload, and update attempts by result.",
		}, []string{"op", "result"})

	// ConfigLastSuccess records the unix time of the last snapshot swap.
	ConfigLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlscope_config_last_success_timestamp_seconds",
			Help: "Unix time of the last successful configuration swap.",
		})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlscope_http_requests_total",
			Help: "HTTP requests served, by route pattern, method, and status.",
		}, []string{"route", "method", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlscope_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})

	// UpstreamDuration times calls to elasticsearch, ollama, and sqlserver.
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlscope_upstream_request_duration_seconds",
			Help:    "Latency of calls to upstream backends by result.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"backend", "result"})
)

func init() {
	prometheus.MustRegister(
		ConfigOpsTotal,
		ConfigLastSuccess,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamDuration,
	)
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
