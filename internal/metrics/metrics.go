package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	// Simulation metrics
	SimulationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridd_simulation_runs_total",
			Help: "Total number of simulation runs",
		},
		[]string{"kind", "preset"},
	)

	SimulationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridd_simulation_duration_seconds",
			Help:    "Simulation run duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"kind"},
	)

	// Ticker metrics
	TickerSeries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridd_ticker_series",
			Help: "Number of registered live metric series",
		},
	)

	TickerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridd_ticker_ticks_total",
			Help: "Total number of ticker advances",
		},
	)

	// Chat metrics
	ChatSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridd_chat_sends_total",
			Help: "Total number of chat sends by outcome",
		},
		[]string{"status"},
	)

	InferenceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridd_inference_request_duration_seconds",
			Help:    "Inference endpoint round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// Annotation metrics
	AnnotationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridd_annotation_events_total",
			Help: "Total number of annotation change events",
		},
		[]string{"type"},
	)

	// Websocket metrics
	WSClientsConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridd_ws_clients_connected",
			Help: "Currently connected websocket clients",
		},
		[]string{"feed"},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridd_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table"},
	)

	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridd_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"operation", "table"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridd_system_uptime_seconds",
			Help: "Service uptime in seconds",
		},
	)

	SystemGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridd_system_goroutines",
			Help: "Current number of goroutines",
		},
	)
)

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(service, method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(service, method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(service, method, endpoint).Observe(duration)
}

// RecordDBQuery records a database query outcome
func RecordDBQuery(operation, table string, err error) {
	DBQueriesTotal.WithLabelValues(operation, table).Inc()
	if err != nil {
		DBErrorsTotal.WithLabelValues(operation, table).Inc()
	}
}
