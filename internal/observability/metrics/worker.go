package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec

	factsExtracted   *prometheus.CounterVec
	alertsRaised     *prometheus.CounterVec
	dealsClustered   *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	edgarFetchTotal  *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "worker",
			Name:      "filing_process_total",
			Help:      "Total processed filings by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dealtrace",
			Subsystem: "worker",
			Name:      "filing_process_duration_seconds",
			Help:      "Filing processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dealtrace",
			Subsystem: "worker",
			Name:      "filing_process_in_flight",
			Help:      "Number of in-flight filing processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dealtrace",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between filing ingestion and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	factsExtracted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "extract",
			Name:      "facts_total",
			Help:      "Total atomic facts emitted by fact kind and extraction method.",
		},
		[]string{"service", "kind", "method"},
	)
	alertsRaised := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "pipeline",
			Name:      "alerts_total",
			Help:      "Total processing alerts raised by kind.",
		},
		[]string{"service", "kind"},
	)
	dealsClustered := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "cluster",
			Name:      "deal_transitions_total",
			Help:      "Total deal cluster transitions (created, promoted, merged, flagged).",
		},
		[]string{"service", "transition"},
	)
	pipelineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dealtrace",
			Subsystem: "pipeline",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one full pipeline pass by stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"service", "stage"},
	)
	edgarFetchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "edgar",
			Name:      "fetch_total",
			Help:      "Total EDGAR document fetches by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		processTotal,
		processDuration,
		processInFlight,
		queueLag,
		factsExtracted,
		alertsRaised,
		dealsClustered,
		pipelineDuration,
		edgarFetchTotal,
	)

	return &WorkerMetrics{
		registry:         registry,
		processTotal:     processTotal,
		processDuration:  processDuration,
		processInFlight:  processInFlight,
		queueLag:         queueLag,
		factsExtracted:   factsExtracted,
		alertsRaised:     alertsRaised,
		dealsClustered:   dealsClustered,
		pipelineDuration: pipelineDuration,
		edgarFetchTotal:  edgarFetchTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartFiling() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishFiling(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordFact(service, kind, method string) {
	m.factsExtracted.WithLabelValues(service, kind, method).Inc()
}

func (m *WorkerMetrics) RecordAlert(service, kind string) {
	m.alertsRaised.WithLabelValues(service, kind).Inc()
}

func (m *WorkerMetrics) RecordDealTransition(service, transition string) {
	m.dealsClustered.WithLabelValues(service, transition).Inc()
}

func (m *WorkerMetrics) ObservePipelineStage(service, stage string, duration time.Duration) {
	m.pipelineDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordEdgarFetch(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.edgarFetchTotal.WithLabelValues(service, outcome).Inc()
}
