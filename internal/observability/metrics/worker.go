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
	vocabularySize  prometheus.Gauge
	newTermsTotal   *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "worker",
			Name:      "entry_process_total",
			Help:      "Total processed knowledge entries by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsa",
			Subsystem: "worker",
			Name:      "entry_process_duration_seconds",
			Help:      "Knowledge entry processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bsa",
			Subsystem: "worker",
			Name:      "entry_process_in_flight",
			Help:      "Number of in-flight knowledge entry processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsa",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between entry creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	vocabularySize := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bsa",
			Subsystem: "vocabulary",
			Name:      "terms",
			Help:      "Current number of terms in the sparse vocabulary.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	newTermsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "vocabulary",
			Name:      "new_terms_total",
			Help:      "Total new terms added to the sparse vocabulary.",
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, vocabularySize, newTermsTotal)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		vocabularySize:  vocabularySize,
		newTermsTotal:   newTermsTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEntry() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishEntry(service string, duration time.Duration, err error) {
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

func (m *WorkerMetrics) SetVocabularySize(terms int) {
	m.vocabularySize.Set(float64(terms))
}

func (m *WorkerMetrics) AddNewTerms(service string, count int) {
	if count <= 0 {
		return
	}
	m.newTermsTotal.WithLabelValues(service).Add(float64(count))
}
