// Package ingest provides the service that admits raw alerts into the
// pipeline.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sentinel-agent/src/broker"
	"sentinel-agent/src/contracts"
	"sentinel-agent/src/logger"
	"sentinel-agent/src/metrics"
)

// Service validates raw alerts, stamps ingestion metadata, and appends
// them to the raw-alerts stream. Failures are reported to the caller and
// never retried here; retry policy belongs to the submitter.
type Service struct {
	stream broker.Stream
	logger logger.Logger
}

// NewService creates an ingestion service.
func NewService(stream broker.Stream, log logger.Logger) *Service {
	return &Service{
		stream: stream,
		logger: log,
	}
}

// Ingest stamps the alert with its origin and ingestion time and appends
// it to the raw stream. source must be SourceSnort or SourceCustom.
func (s *Service) Ingest(ctx context.Context, alert contracts.RawAlert, source string) error {
	if source != contracts.SourceSnort && source != contracts.SourceCustom {
		return fmt.Errorf("%w: unknown ingestion source %q", contracts.ErrInvalidRecord, source)
	}

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	alert.Source = source
	alert.IngestedAt = time.Now().UTC()

	id, err := s.stream.Append(ctx, contracts.StreamRawAlerts, alert.Fields())
	if err != nil {
		return fmt.Errorf("appending alert %s: %w", alert.ID, err)
	}

	metrics.AlertsIngested.WithLabelValues(source).Inc()
	s.logger.Debug("[Ingest] Appended alert %s as %s (source=%s, src=%s)",
		alert.ID, id, source, alert.SourceIP)

	return nil
}
