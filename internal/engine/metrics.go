package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полный цикл оценки (скореры + агрегация + аудит)
	AssessmentDuration *prometheus.HistogramVec

	// Traffic: принятые запросы на оценку
	AssessmentsTotal *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker скореров (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера персистентности (backpressure)
	AuditBufferFill prometheus.Gauge

	// Audit: длина цепочки по системам
	ChainLength *prometheus.GaugeVec

	// Monitoring: поднятые алерты порогового монитора
	AlertsTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		AssessmentDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aigov_assessment_duration_seconds",
			Help:    "Histogram of full assessment cycle latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"kind", "status"}),

		AssessmentsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aigov_assessments_total",
			Help: "Total number of submitted assessments.",
		}, []string{"kind"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aigov_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: validation_error, concurrent_append, integrity_violation, scorer_failure...

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "aigov_scorer_circuit_breaker_state",
			Help: "Current state of the scorer circuit breaker (0=closed, 1=open).",
		}, []string{"scorer_id"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aigov_audit_buffer_utilization",
			Help: "Current number of events in audit persistence buffer.",
		}),

		ChainLength: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "aigov_audit_chain_length",
			Help: "Number of events in the audit chain per system.",
		}, []string{"system_id"}),

		AlertsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aigov_monitoring_alerts_total",
			Help: "Total number of raised threshold alerts.",
		}, []string{"metric", "classification"}),
	}
}

// IncAlert реализует monitor.AlertCounter. system_id в лейблы не попадает:
// кардинальность счетчика держим по метрике и классу.
func (m *Metrics) IncAlert(_ string, metric, class string) {
	m.AlertsTotal.WithLabelValues(metric, class).Inc()
}
