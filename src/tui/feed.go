package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sentinel-agent/src/broker"
	"sentinel-agent/src/contracts"
)

// AlertMsg delivers one enriched alert to the watch model.
type AlertMsg Item

// FeedClosedMsg tells the model the feed stopped delivering.
type FeedClosedMsg struct{ Err error }

// Feed subscribes to the processed stream and turns new entries into
// Bubble Tea messages. Each watch session uses its own consumer group so
// watchers never steal deliveries from the processor or from each other;
// entries are acknowledged as soon as they are read.
type Feed struct {
	stream   broker.Stream
	group    string
	consumer string
	buffered []broker.Message
}

// NewFeed creates a feed over the processed stream.
func NewFeed(stream broker.Stream) *Feed {
	session := time.Now().UnixNano()
	return &Feed{
		stream:   stream,
		group:    fmt.Sprintf("watch_%d", session),
		consumer: fmt.Sprintf("watcher_%d", session),
	}
}

// Start registers the session's consumer group.
func (f *Feed) Start(ctx context.Context) error {
	if err := f.stream.EnsureGroup(ctx, contracts.StreamProcessedAlerts, f.group); err != nil {
		return fmt.Errorf("ensuring watch group: %w", err)
	}
	return nil
}

// Next returns a command that blocks until the next alert arrives.
func (f *Feed) Next(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		for {
			if len(f.buffered) > 0 {
				msg := f.buffered[0]
				f.buffered = f.buffered[1:]
				return AlertMsg{Alert: contracts.EnrichedAlertFromFields(msg.Fields)}
			}

			batch, err := f.stream.ReadBatch(ctx, contracts.StreamProcessedAlerts,
				f.group, f.consumer, 10, time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return FeedClosedMsg{Err: ctx.Err()}
				}
				return FeedClosedMsg{Err: err}
			}
			for _, msg := range batch {
				// A watcher only displays; nothing is lost if it misses
				// an entry, so ack immediately.
				f.stream.Ack(ctx, contracts.StreamProcessedAlerts, f.group, msg.ID)
			}
			f.buffered = append(f.buffered, batch...)
		}
	}
}
