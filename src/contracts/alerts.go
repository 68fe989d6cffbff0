// Package contracts defines the alert types, wire encoding, and error
// taxonomy shared by every stage of the pipeline.
package contracts

import "time"

// Stream and consumer-group names used across the pipeline.
const (
	// StreamRawAlerts carries alerts as ingested, before enrichment.
	StreamRawAlerts = "raw_alerts"
	// StreamProcessedAlerts carries enriched alerts for downstream consumers.
	StreamProcessedAlerts = "processed_alerts"
	// GroupAlertProcessors is the consumer group shared by all processor instances.
	GroupAlertProcessors = "alert_processors"
)

// Ingestion source tags. The source discriminator is the only externally
// observable difference between ingestion origins.
const (
	SourceSnort  = "snort"
	SourceCustom = "custom"
)

// RawAlert is a sensor event as it enters the pipeline.
// Immutable once appended to the raw stream.
type RawAlert struct {
	// Unique identifier assigned at ingestion.
	ID string `json:"id"`
	// Source and destination endpoints of the triggering traffic.
	SourceIP        string `json:"source_ip"`
	DestinationIP   string `json:"destination_ip"`
	SourcePort      int    `json:"source_port"`
	DestinationPort int    `json:"destination_port"`
	// Transport or application protocol name (e.g. TCP, UDP, HTTP).
	Protocol string `json:"protocol"`
	// Human-readable alert text from the sensor rule.
	Message string `json:"message"`
	// Sensor rule identifier (Snort SID). Zero when the origin has no rule id.
	RuleID int64 `json:"rule_id,omitempty"`
	// Time the sensor observed the event.
	Timestamp time.Time `json:"timestamp"`
	// Ingestion origin: SourceSnort or SourceCustom. Stamped by the
	// ingestion service, not the caller.
	Source string `json:"source"`
	// Time the alert entered the raw stream. Stamped by the ingestion service.
	IngestedAt time.Time `json:"ingested_at"`
}

// EnrichedAlert is a RawAlert plus the classification attached by the
// processor. It is persisted and republished as one unit; a partially
// enriched alert is never visible downstream.
type EnrichedAlert struct {
	RawAlert

	// Classification label: 0 normal, 1 anomaly.
	Label int `json:"label"`
	// Classifier confidence in [0, 1].
	Confidence float64 `json:"confidence"`
	// Feature vector the label was derived from, in extractor order.
	FeatureVector []float64 `json:"feature_vector"`
	// Time enrichment completed.
	ProcessedAt time.Time `json:"processed_at"`
}

// StreamInfo is a best-effort snapshot of a stream's state.
type StreamInfo struct {
	Length  int64
	FirstID string
	LastID  string
	Groups  int64
}
