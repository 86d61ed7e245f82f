package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker fleet metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recon_workers_total",
			Help: "Total number of registered workers by status",
		},
		[]string{"status"},
	)

	WorkersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recon_workers_online",
			Help: "Number of workers currently reporting live telemetry",
		},
	)

	WorkerLoadCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recon_worker_cpu_percent",
			Help: "Last-reported CPU utilization percent per worker",
		},
		[]string{"worker_id"},
	)

	WorkerLoadMem = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recon_worker_mem_percent",
			Help: "Last-reported memory utilization percent per worker",
		},
		[]string{"worker_id"},
	)

	// Scan lifecycle metrics
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_scans_total",
			Help: "Total number of scans by terminal status",
		},
		[]string{"status"},
	)

	ScansInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "recon_scans_in_progress",
			Help: "Number of scans currently running",
		},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recon_scan_duration_seconds",
			Help:    "Wall-clock duration of a completed scan in seconds",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200, 14400, 28800},
		},
	)

	// Dispatcher metrics
	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recon_dispatch_latency_seconds",
			Help:    "Time taken to select a worker and launch a tool command",
			Buckets: prometheus.DefBuckets,
		},
	)

	AdmissionTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recon_admission_timeouts_total",
			Help: "Total number of dispatch attempts that hit the admission timeout",
		},
	)

	CommandsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_commands_dispatched_total",
			Help: "Total number of tool commands dispatched by transport",
		},
		[]string{"transport"},
	)

	// Tool execution metrics
	ToolExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recon_tool_exec_duration_seconds",
			Help:    "Tool execution duration in seconds by tool and stage",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 600, 1800, 3600},
		},
		[]string{"tool", "stage"},
	)

	ToolExecFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_tool_exec_failures_total",
			Help: "Total number of tool executions that ended in failure or timeout",
		},
		[]string{"tool", "stage", "reason"},
	)

	// Pipeline stage metrics
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recon_stage_duration_seconds",
			Help:    "Time taken to complete a pipeline stage group",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Ingestion metrics
	AssetsUpsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_assets_upserted_total",
			Help: "Total number of asset rows upserted by entity type",
		},
		[]string{"entity"},
	)

	IngestLinesMalformedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_ingest_lines_malformed_total",
			Help: "Total number of tool output lines dropped for failing to parse",
		},
		[]string{"tool"},
	)

	// Control plane API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recon_api_requests_total",
			Help: "Total number of control plane API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recon_api_request_duration_seconds",
			Help:    "Control plane API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkersOnline)
	prometheus.MustRegister(WorkerLoadCPU)
	prometheus.MustRegister(WorkerLoadMem)

	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(ScansInProgress)
	prometheus.MustRegister(ScanDuration)

	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(AdmissionTimeoutsTotal)
	prometheus.MustRegister(CommandsDispatchedTotal)

	prometheus.MustRegister(ToolExecDuration)
	prometheus.MustRegister(ToolExecFailuresTotal)

	prometheus.MustRegister(StageDuration)

	prometheus.MustRegister(AssetsUpsertedTotal)
	prometheus.MustRegister(IngestLinesMalformedTotal)

	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
