package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	alertResolutionsTotal *prometheus.CounterVec
	manualFactsTotal      *prometheus.CounterVec
	pipelineTriggersTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dealtrace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dealtrace",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	alertResolutionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "review",
			Name:      "alert_resolutions_total",
			Help:      "Total alert resolutions submitted through the API.",
		},
		[]string{"service", "kind"},
	)
	manualFactsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "review",
			Name:      "manual_facts_total",
			Help:      "Total manual facts entered by reviewers.",
		},
		[]string{"service", "kind"},
	)
	pipelineTriggersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealtrace",
			Subsystem: "pipeline",
			Name:      "manual_triggers_total",
			Help:      "Total pipeline passes requested through the API.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		alertResolutionsTotal,
		manualFactsTotal,
		pipelineTriggersTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		alertResolutionsTotal: alertResolutionsTotal,
		manualFactsTotal:      manualFactsTotal,
		pipelineTriggersTotal: pipelineTriggersTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/deals/"):
		return "/v1/deals/{deal_id}"
	case strings.HasPrefix(path, "/v1/filings/"):
		return "/v1/filings/{filing_id}"
	case strings.HasPrefix(path, "/v1/alerts/"):
		return "/v1/alerts/{alert_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordAlertResolution(service, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.alertResolutionsTotal.WithLabelValues(service, kind).Inc()
}

func (m *HTTPServerMetrics) RecordManualFact(service, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.manualFactsTotal.WithLabelValues(service, kind).Inc()
}

func (m *HTTPServerMetrics) RecordPipelineTrigger(service string) {
	m.pipelineTriggersTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
