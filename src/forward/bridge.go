// Package forward provides the bridge that relays enriched alerts from
// the processed stream to a downstream Kafka topic for consumers outside
// the pipeline (SIEM ingestion, long-term analytics).
package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sentinel-agent/src/broker"
	"sentinel-agent/src/contracts"
	"sentinel-agent/src/logger"
	"sentinel-agent/src/metrics"
)

// GroupForwarders is the consumer group shared by all bridge instances.
// It is independent of the processor group: forwarding lag never blocks
// enrichment.
const GroupForwarders = "alert_forwarders"

// Producer publishes one record to the downstream bus.
type Producer interface {
	Produce(ctx context.Context, key string, value []byte) error
	Close() error
}

// Options tunes the bridge's consumption loop.
type Options struct {
	BatchSize     int
	BlockInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BlockInterval <= 0 {
		o.BlockInterval = time.Second
	}
}

// Bridge consumes the processed stream and forwards each enriched alert.
// A message is acknowledged only after the produce succeeds, so broker
// or producer failures leave it pending for redelivery; the downstream
// topic sees at-least-once delivery.
type Bridge struct {
	stream   broker.Stream
	producer Producer
	logger   logger.Logger
	opts     Options
	consumer string
}

// NewBridge creates a forwarding bridge.
func NewBridge(stream broker.Stream, producer Producer, log logger.Logger, opts Options) *Bridge {
	opts.applyDefaults()
	return &Bridge{
		stream:   stream,
		producer: producer,
		logger:   log,
		opts:     opts,
		consumer: fmt.Sprintf("forwarder_%d", time.Now().UnixNano()),
	}
}

// Run forwards alerts until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.stream.EnsureGroup(ctx, contracts.StreamProcessedAlerts, GroupForwarders); err != nil {
		return fmt.Errorf("ensuring consumer group: %w", err)
	}

	b.logger.Info("[Forwarder] Started (consumer=%s)", b.consumer)

	for {
		if ctx.Err() != nil {
			b.logger.Info("[Forwarder] Context cancelled, shutting down")
			return ctx.Err()
		}

		batch, err := b.stream.ReadBatch(ctx, contracts.StreamProcessedAlerts,
			GroupForwarders, b.consumer, b.opts.BatchSize, b.opts.BlockInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("[Forwarder] Read failed: %v", err)
			continue
		}

		for _, msg := range batch {
			if err := b.forward(ctx, msg); err != nil {
				b.logger.Error("[Forwarder] Failed to forward %s: %v", msg.ID, err)
				continue
			}
			if err := b.stream.Ack(ctx, contracts.StreamProcessedAlerts, GroupForwarders, msg.ID); err != nil {
				// The alert was produced; a failed ack means it may be
				// forwarded again later.
				b.logger.Error("[Forwarder] Ack failed for %s: %v", msg.ID, err)
			}
		}
	}
}

// forward produces one enriched alert to the downstream topic, keyed by
// source IP so alerts from one host land on one partition.
func (b *Bridge) forward(ctx context.Context, msg broker.Message) error {
	alert := contracts.EnrichedAlertFromFields(msg.Fields)

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert %s: %w", alert.ID, err)
	}

	key := alert.SourceIP
	if key == "" {
		key = alert.ID
	}

	if err := b.producer.Produce(ctx, key, payload); err != nil {
		return fmt.Errorf("producing alert %s: %w", alert.ID, err)
	}

	metrics.AlertsForwarded.Inc()
	b.logger.Debug("[Forwarder] Forwarded alert %s (label=%d)", alert.ID, alert.Label)
	return nil
}
