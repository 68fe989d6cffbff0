// Package cache defines the short-lived lookup cache used for recent-alert
// reads by the API layer.
package cache

import (
	"context"
	"fmt"
	"time"
)

// RecentAlertTTL is how long a processed alert stays in the cache.
const RecentAlertTTL = time.Hour

// Cache is a best-effort TTL key-value store. A cache failure must never
// fail the operation that wrote to it; callers log and move on.
type Cache interface {
	// Put stores a value under key for the given TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key. The second result is false when the
	// key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Close closes the cache connection.
	Close() error
}

// RecentAlertKey builds the lookup key for a persisted alert id.
func RecentAlertKey(id int64) string {
	return fmt.Sprintf("recent_alert_%d", id)
}
