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

	answerRequestsTotal    *prometheus.CounterVec
	answerVersionTotal     *prometheus.CounterVec
	retrievalHitTotal      *prometheus.CounterVec
	retrievalNoContextHits *prometheus.CounterVec
	retrievedDocuments     *prometheus.HistogramVec
	answerDuration         *prometheus.HistogramVec
	answerConfidence       *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bsa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	answerRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "answer",
			Name:      "requests_total",
			Help:      "Total successful support answer requests.",
		},
		[]string{"service"},
	)
	answerVersionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "answer",
			Name:      "version_requests_total",
			Help:      "Total answer requests by detected Bisq version.",
		},
		[]string{"service", "version"},
	)
	retrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "answer",
			Name:      "retrieval_hit_total",
			Help:      "Total answer requests with at least one retrieved source.",
		},
		[]string{"service"},
	)
	retrievalNoContextHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "answer",
			Name:      "no_context_total",
			Help:      "Total answer requests without retrieved sources.",
		},
		[]string{"service"},
	)
	retrievedDocuments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsa",
			Subsystem: "answer",
			Name:      "retrieved_documents",
			Help:      "Distribution of retrieved documents per successful answer request.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsa",
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "Answer pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	answerConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsa",
			Subsystem: "answer",
			Name:      "confidence",
			Help:      "Distribution of answer confidence scores.",
			Buckets:   []float64{0, 0.1, 0.25, 0.4, 0.55, 0.7, 0.85, 1},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		answerRequestsTotal,
		answerVersionTotal,
		retrievalHitTotal,
		retrievalNoContextHits,
		retrievedDocuments,
		answerDuration,
		answerConfidence,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		answerRequestsTotal:    answerRequestsTotal,
		answerVersionTotal:     answerVersionTotal,
		retrievalHitTotal:      retrievalHitTotal,
		retrievalNoContextHits: retrievalNoContextHits,
		retrievedDocuments:     retrievedDocuments,
		answerDuration:         answerDuration,
		answerConfidence:       answerConfidence,
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
	case strings.HasPrefix(path, "/v1/knowledge/"):
		return "/v1/knowledge/{entry_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordAnswer(service, version string, sourceCount int, confidence float64, duration time.Duration) {
	if version == "" {
		version = "unknown"
	}
	m.answerRequestsTotal.WithLabelValues(service).Inc()
	m.answerVersionTotal.WithLabelValues(service, version).Inc()
	m.retrievedDocuments.WithLabelValues(service).Observe(float64(sourceCount))
	m.answerDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.answerConfidence.WithLabelValues(service).Observe(confidence)

	if sourceCount > 0 {
		m.retrievalHitTotal.WithLabelValues(service).Inc()
		return
	}
	m.retrievalNoContextHits.WithLabelValues(service).Inc()
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
