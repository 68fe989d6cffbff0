// Package store defines the interface for durable alert persistence.
package store

import (
	"context"

	"sentinel-agent/src/contracts"
)

// Store persists enriched alerts. Implementations must be safe for
// concurrent use by the processor's pool workers.
type Store interface {
	// SaveAlert persists an enriched alert and returns its assigned id.
	// Failures are classified as ErrDurability; the caller must not
	// acknowledge the originating message when SaveAlert fails.
	SaveAlert(ctx context.Context, alert *contracts.EnrichedAlert) (int64, error)

	// RecentAlerts returns the most recently processed alerts, newest
	// first.
	RecentAlerts(ctx context.Context, limit int) ([]contracts.EnrichedAlert, error)

	// Close closes the store connection.
	Close() error
}
