package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingest pipeline Prometheus metrics.
var (
	WatcherEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiologyai",
			Name:      "watcher_events_total",
			Help:      "Total number of file events emitted by the source watcher",
		},
		[]string{"kind"}, // "initial_scan" / "fsnotify"
	)

	DocumentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiologyai",
			Name:      "documents_processed_total",
			Help:      "Total number of documents run through the ingest pipeline",
		},
		[]string{"status"}, // "indexed" / "degraded" / "skipped" / "error"
	)

	DocumentProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "radiologyai",
			Name:      "document_processing_duration_seconds",
			Help:      "End-to-end document processing duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	TriageClassificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiologyai",
			Name:      "triage_classifications_total",
			Help:      "Total number of severity classifications by tier",
		},
		[]string{"severity"},
	)

	AlertsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiologyai",
			Name:      "alerts_emitted_total",
			Help:      "Total number of alerts published by the broker",
		},
		[]string{"severity"},
	)

	AlertsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "radiologyai",
			Name:      "alerts_dropped_total",
			Help:      "Alerts dropped because a subscriber buffer was full",
		},
	)

	AlertSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "radiologyai",
			Name:      "alert_subscribers",
			Help:      "Current number of alert subscribers",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers ingest pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(WatcherEventsTotal)
	prometheus.MustRegister(DocumentsProcessedTotal)
	prometheus.MustRegister(DocumentProcessingDuration)
	prometheus.MustRegister(TriageClassificationsTotal)
	prometheus.MustRegister(AlertsEmittedTotal)
	prometheus.MustRegister(AlertsDroppedTotal)
	prometheus.MustRegister(AlertSubscribers)
	pipelineMetricsRegistered = true
}
