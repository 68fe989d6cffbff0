// Package store provides an in-memory store implementation.
package store

import (
	"context"
	"sync"

	"sentinel-agent/src/contracts"
)

// MemoryStore is an in-memory implementation of Store.
// Useful for testing and for running without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	alerts []contracts.EnrichedAlert

	// FailNext makes the next SaveAlert calls fail with ErrDurability.
	// Test hook for the processor's failure containment.
	failNext int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailNextSaves makes the next n SaveAlert calls fail.
func (s *MemoryStore) FailNextSaves(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// SaveAlert persists an enriched alert.
func (s *MemoryStore) SaveAlert(ctx context.Context, alert *contracts.EnrichedAlert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return 0, contracts.ErrDurability
	}

	s.nextID++
	s.alerts = append(s.alerts, *alert)
	return s.nextID, nil
}

// RecentAlerts returns the most recently saved alerts, newest first.
func (s *MemoryStore) RecentAlerts(ctx context.Context, limit int) ([]contracts.EnrichedAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit > len(s.alerts) {
		limit = len(s.alerts)
	}

	result := make([]contracts.EnrichedAlert, 0, limit)
	for i := len(s.alerts) - 1; i >= len(s.alerts)-limit; i-- {
		result = append(result, s.alerts[i])
	}
	return result, nil
}

// Count returns the number of saved alerts. Test helper.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// Close closes the store (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}
