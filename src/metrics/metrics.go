// Package metrics defines the Prometheus collectors for the alert pipeline.
// Collectors are incremented explicitly at call sites rather than through
// wrappers, so each increment is visible where the work happens.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for AlertsProcessed.
const (
	LabelNormal  = "normal"
	LabelAnomaly = "anomaly"
)

var (
	// AlertsIngested counts raw alerts appended to the inbound stream,
	// by ingestion source.
	AlertsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_alerts_ingested_total",
		Help: "Raw alerts ingested into the pipeline",
	}, []string{"source"})

	// AlertsProcessed counts alerts that completed enrichment end to end.
	AlertsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_alerts_processed_total",
		Help: "Alerts enriched, persisted, and republished",
	}, []string{"source", "prediction"})

	// ProcessingFailures counts per-message failures by pipeline stage.
	// Failed messages stay pending on the stream for redelivery.
	ProcessingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_processing_failures_total",
		Help: "Per-message enrichment failures by stage",
	}, []string{"stage"})

	// ScoringDuration observes scoring-capability latency.
	ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_scoring_duration_seconds",
		Help:    "Scoring capability call duration",
		Buckets: prometheus.DefBuckets,
	})

	// AlertsForwarded counts enriched alerts forwarded to the downstream
	// Kafka topic.
	AlertsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_alerts_forwarded_total",
		Help: "Enriched alerts forwarded to the downstream bus",
	})

	// StreamLength reports the last observed length of each stream.
	StreamLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentinel_stream_length",
		Help: "Last observed stream length",
	}, []string{"stream"})

	// WorkersBusy reports how many pool workers are currently enriching.
	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_workers_busy",
		Help: "Pool workers currently processing a message",
	})
)

// PredictionLabel maps a classifier label to its metric label value.
func PredictionLabel(label int) string {
	if label == 1 {
		return LabelAnomaly
	}
	return LabelNormal
}
