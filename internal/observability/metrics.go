package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myquery_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myquery_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	fanoutSourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myquery_fanout_sources_total",
			Help: "Per-source fan-out executions by outcome.",
		},
		[]string{"outcome"},
	)
	fanoutSourceDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "myquery_fanout_source_duration_seconds",
			Help:    "Latency of a single source within a fan-out round.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	mergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myquery_merges_total",
			Help: "Result merges by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myquery_queries_total",
			Help: "Single-connection query executions by outcome.",
		},
		[]string{"outcome"},
	)
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myquery_mcp_actions_total",
			Help: "Dispatched MCP actions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
	actionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myquery_mcp_action_duration_seconds",
			Help:    "MCP action latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"action"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "myquery_sessions_active",
			Help: "Sessions currently held by the session store.",
		},
	)
	sessionsEvictedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myquery_sessions_evicted_total",
			Help: "Sessions removed by the store, by reason.",
		},
		[]string{"reason"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myquery_exports_total",
			Help: "Export files written, by format and outcome.",
		},
		[]string{"format", "outcome"},
	)
	exportBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "myquery_export_bytes_total",
			Help: "Bytes written by successful exports.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		fanoutSourcesTotal,
		fanoutSourceDurationSeconds,
		mergesTotal,
		queriesTotal,
		actionsTotal,
		actionDurationSeconds,
		activeSessions,
		sessionsEvictedTotal,
		exportsTotal,
		exportBytesTotal,
	)
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func ObserveFanoutSource(ok bool, duration time.Duration) {
	fanoutSourcesTotal.WithLabelValues(outcome(ok)).Inc()
	fanoutSourceDurationSeconds.Observe(duration.Seconds())
}

func ObserveMerge(mode string, ok bool) {
	mergesTotal.WithLabelValues(mode, outcome(ok)).Inc()
}

// ObserveQuery records a single-connection execution; blocked statements are
// counted separately from failures.
func ObserveQuery(ok, blocked bool) {
	switch {
	case blocked:
		queriesTotal.WithLabelValues("blocked").Inc()
	default:
		queriesTotal.WithLabelValues(outcome(ok)).Inc()
	}
}

func ObserveAction(action string, ok bool, duration time.Duration) {
	actionsTotal.WithLabelValues(action, outcome(ok)).Inc()
	actionDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

func ObserveSessionEviction(reason string) {
	sessionsEvictedTotal.WithLabelValues(reason).Inc()
}

func ObserveExport(format string, ok bool, size int64) {
	exportsTotal.WithLabelValues(format, outcome(ok)).Inc()
	if ok {
		exportBytesTotal.Add(float64(size))
	}
}
