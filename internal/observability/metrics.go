// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Decision metrics
	TicksProcessed  prometheus.Counter
	DecisionsTotal  *prometheus.CounterVec
	SourceErrors    *prometheus.CounterVec
	SourceLatency   *prometheus.HistogramVec
	RiskOverrides   prometheus.Counter
	ProtectiveExits *prometheus.CounterVec

	// Execution metrics
	OrdersTotal *prometheus.CounterVec

	// Simulation metrics
	RunsTotal         *prometheus.CounterVec
	ActiveRuns        prometheus.Gauge
	DayDuration       prometheus.Histogram
	RunProgress       *prometheus.GaugeVec
	ResultWriteErrors *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Paper trading metrics
	PaperEvaluations *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stock_bot_lab"
	}

	return &Metrics{
		// Decision metrics
		TicksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "ticks_processed_total",
			Help:      "Total number of (bot, symbol, tick) evaluations",
		}),
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "decisions_total",
			Help:      "Total number of decisions by final action",
		}, []string{"action"}),
		SourceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "source_errors_total",
			Help:      "Signal source failures and timeouts treated as absent",
		}, []string{"kind", "error_type"}),
		SourceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "source_latency_seconds",
			Help:      "Signal source call latency",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}, []string{"kind"}),
		RiskOverrides: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "risk_overrides_total",
			Help:      "Decisions forced to hold by the risk score threshold",
		}),
		ProtectiveExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "protective_exits_total",
			Help:      "Stop-loss and take-profit exits emitted",
		}, []string{"reason"}),

		// Execution metrics
		OrdersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_total",
			Help:      "Orders reaching a terminal status",
		}, []string{"status"}),

		// Simulation metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Simulation runs by final status",
		}, []string{"status"}),
		ActiveRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "active_runs",
			Help:      "Simulation runs currently running or paused",
		}),
		DayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "day_duration_seconds",
			Help:      "Wall time to simulate one trading day for all bots",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RunProgress: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "run_progress_percent",
			Help:      "Progress of a simulation run",
		}, []string{"run_id"}),
		ResultWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "result_write_errors_total",
			Help:      "Failed result writes by record type",
		}, []string{"record"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Paper trading metrics
		PaperEvaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "papertrade",
			Name:      "evaluations_total",
			Help:      "Paper trading evaluations by action",
		}, []string{"action"}),
	}
}

// Handler returns HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick counts one evaluation and its final action.
func (m *Metrics) RecordTick(action string) {
	if m == nil {
		return
	}
	m.TicksProcessed.Inc()
	m.DecisionsTotal.WithLabelValues(action).Inc()
}

// RecordSourceError counts a source failure treated as absent.
func (m *Metrics) RecordSourceError(kind, errorType string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(kind, errorType).Inc()
}

// RecordSourceLatency observes a source call duration.
func (m *Metrics) RecordSourceLatency(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.SourceLatency.WithLabelValues(kind).Observe(seconds)
}

// RecordRiskOverride counts a hard risk override.
func (m *Metrics) RecordRiskOverride() {
	if m == nil {
		return
	}
	m.RiskOverrides.Inc()
}

// RecordProtectiveExit counts a stop-loss or take-profit exit.
func (m *Metrics) RecordProtectiveExit(reason string) {
	if m == nil {
		return
	}
	m.ProtectiveExits.WithLabelValues(reason).Inc()
}

// RecordOrder counts an order reaching status.
func (m *Metrics) RecordOrder(status string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(status).Inc()
}

// RecordRunStarted increments the active runs gauge.
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RecordRunFinished records a terminal run status.
func (m *Metrics) RecordRunFinished(runID, status string) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunProgress.DeleteLabelValues(runID)
}

// RecordRunProgress sets the progress gauge of a run.
func (m *Metrics) RecordRunProgress(runID string, progress float64) {
	if m == nil {
		return
	}
	m.RunProgress.WithLabelValues(runID).Set(progress)
}

// RecordDayDuration observes the wall time of one simulated day.
func (m *Metrics) RecordDayDuration(seconds float64) {
	if m == nil {
		return
	}
	m.DayDuration.Observe(seconds)
}

// RecordResultWriteError counts a failed result write.
func (m *Metrics) RecordResultWriteError(record string) {
	if m == nil {
		return
	}
	m.ResultWriteErrors.WithLabelValues(record).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPaperEvaluation counts a paper trading evaluation.
func (m *Metrics) RecordPaperEvaluation(action string) {
	if m == nil {
		return
	}
	m.PaperEvaluations.WithLabelValues(action).Inc()
}
