// Package broker provides an in-memory implementation of Stream.
package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sentinel-agent/src/contracts"
)

// InMemoryStream is an in-memory Stream with real consumer-group and
// pending-entry semantics. It backs tests and single-process runs without
// a Redis server.
type InMemoryStream struct {
	mu sync.Mutex
	// notify is closed and replaced on every append so blocked readers
	// wake up.
	notify  chan struct{}
	streams map[string]*memStream
	minIdle time.Duration
	closed  bool

	// now is replaceable in tests to age pending entries.
	now func() time.Time
}

type memStream struct {
	entries []memEntry
	nextSeq int64
	groups  map[string]*memGroup
}

type memEntry struct {
	id     string
	fields map[string]string
}

type memGroup struct {
	// next indexes the first entry not yet delivered to any consumer.
	next    int
	pending map[string]*pendingEntry
}

type pendingEntry struct {
	index       int
	consumer    string
	deliveredAt time.Time
}

// NewInMemoryStream creates an empty in-memory broker. minIdle controls
// when an unacknowledged delivery becomes reclaimable.
func NewInMemoryStream(minIdle time.Duration) *InMemoryStream {
	return &InMemoryStream{
		notify:  make(chan struct{}),
		streams: make(map[string]*memStream),
		minIdle: minIdle,
		now:     time.Now,
	}
}

// SetClock replaces the broker's clock. Tests use it to age pending
// entries without sleeping.
func (b *InMemoryStream) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Append implements Stream.
func (b *InMemoryStream) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: no fields to append", contracts.ErrInvalidRecord)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", fmt.Errorf("%w: broker is closed", contracts.ErrBrokerUnavailable)
	}

	s := b.stream(stream)
	s.nextSeq++
	id := fmt.Sprintf("%d-0", s.nextSeq)

	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.entries = append(s.entries, memEntry{id: id, fields: copied})

	// Wake blocked readers.
	close(b.notify)
	b.notify = make(chan struct{})

	return id, nil
}

// EnsureGroup implements Stream.
func (b *InMemoryStream) EnsureGroup(ctx context.Context, stream, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("%w: broker is closed", contracts.ErrBrokerUnavailable)
	}

	s := b.stream(stream)
	if _, exists := s.groups[group]; !exists {
		s.groups[group] = &memGroup{pending: make(map[string]*pendingEntry)}
	}
	return nil
}

// ReadBatch implements Stream. Pending entries idle past minIdle are
// reclaimed first, then new entries are delivered; if neither exists the
// call blocks up to block for an append.
func (b *InMemoryStream) ReadBatch(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Message, error) {
	deadline := time.Now().Add(block)

	for {
		messages, notify, err := b.claim(stream, group, consumer, count)
		if err != nil {
			return nil, err
		}
		if len(messages) > 0 {
			return messages, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-notify:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (b *InMemoryStream) claim(stream, group, consumer string, count int) ([]Message, chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, fmt.Errorf("%w: broker is closed", contracts.ErrBrokerUnavailable)
	}

	s := b.stream(stream)
	g, exists := s.groups[group]
	if !exists {
		return nil, nil, fmt.Errorf("%w: no such group %s on %s", contracts.ErrBrokerUnavailable, group, stream)
	}

	now := b.now()
	var messages []Message

	// Reclaim deliveries idle past minIdle, oldest entry first.
	var stale []string
	for id, p := range g.pending {
		if now.Sub(p.deliveredAt) >= b.minIdle {
			stale = append(stale, id)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return g.pending[stale[i]].index < g.pending[stale[j]].index
	})
	for _, id := range stale {
		if len(messages) >= count {
			break
		}
		p := g.pending[id]
		p.consumer = consumer
		p.deliveredAt = now
		messages = append(messages, b.toMessage(stream, s.entries[p.index]))
	}

	// Deliver new entries.
	for len(messages) < count && g.next < len(s.entries) {
		entry := s.entries[g.next]
		g.pending[entry.id] = &pendingEntry{
			index:       g.next,
			consumer:    consumer,
			deliveredAt: now,
		}
		g.next++
		messages = append(messages, b.toMessage(stream, entry))
	}

	return messages, b.notify, nil
}

// Ack implements Stream. Acknowledging an id that is not pending is a
// no-op.
func (b *InMemoryStream) Ack(ctx context.Context, stream, group, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("%w: broker is closed", contracts.ErrBrokerUnavailable)
	}

	s := b.stream(stream)
	if g, exists := s.groups[group]; exists {
		delete(g.pending, id)
	}
	return nil
}

// StreamInfo implements Stream.
func (b *InMemoryStream) StreamInfo(ctx context.Context, stream string) contracts.StreamInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.streams[stream]
	if !exists || b.closed {
		return contracts.StreamInfo{}
	}

	info := contracts.StreamInfo{
		Length: int64(len(s.entries)),
		Groups: int64(len(s.groups)),
	}
	if len(s.entries) > 0 {
		info.FirstID = s.entries[0].id
		info.LastID = s.entries[len(s.entries)-1].id
	}
	return info
}

// Pending reports how many deliveries are unacknowledged for a group.
// Test helper.
func (b *InMemoryStream) Pending(stream, group string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.streams[stream]
	if !exists {
		return 0
	}
	g, exists := s.groups[group]
	if !exists {
		return 0
	}
	return len(g.pending)
}

// Close implements Stream.
func (b *InMemoryStream) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// stream returns the named stream, creating it if absent. Callers hold the
// lock.
func (b *InMemoryStream) stream(name string) *memStream {
	s, exists := b.streams[name]
	if !exists {
		s = &memStream{groups: make(map[string]*memGroup)}
		b.streams[name] = s
	}
	return s
}

func (b *InMemoryStream) toMessage(stream string, entry memEntry) Message {
	fields := make(map[string]string, len(entry.fields))
	for k, v := range entry.fields {
		fields[k] = v
	}
	return Message{ID: entry.id, Stream: stream, Fields: fields}
}
