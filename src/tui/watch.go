// Package tui provides the terminal watch view: a live feed of enriched
// alerts with a detail panel for the selected entry.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// maxAlerts bounds the in-memory feed; the oldest entries are dropped.
const maxAlerts = 500

// WatchModel is the Bubble Tea model for the live alert feed.
// Layout is a split view: the upper part lists recent alerts, the lower
// part shows the selected alert in full.
type WatchModel struct {
	feed *Feed
	ctx  context.Context

	items      []Item
	cursor     int
	listScroll int
	follow     bool // cursor sticks to the newest entry
	closed     error
	waiting    spinner.Model

	terminalWidth  int
	terminalHeight int
}

// NewWatchModel creates a watch model over a started feed.
func NewWatchModel(ctx context.Context, feed *Feed) WatchModel {
	waiting := spinner.New()
	waiting.Spinner = spinner.Dot
	return WatchModel{
		feed:    feed,
		ctx:     ctx,
		follow:  true,
		waiting: waiting,
	}
}

// Init starts pulling from the feed. Required by tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.feed.Next(m.ctx), m.waiting.Tick)
}

// Update handles navigation keys and incoming alerts.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.terminalWidth = msg.Width
		m.terminalHeight = msg.Height

	case AlertMsg:
		m.items = append(m.items, Item(msg))
		if len(m.items) > maxAlerts {
			drop := len(m.items) - maxAlerts
			m.items = m.items[drop:]
			m.cursor = max(0, m.cursor-drop)
			m.listScroll = max(0, m.listScroll-drop)
		}
		if m.follow {
			m.cursor = len(m.items) - 1
			m.scrollToCursor()
		}
		return m, m.feed.Next(m.ctx)

	case FeedClosedMsg:
		m.closed = msg.Err
		return m, nil

	case spinner.TickMsg:
		if len(m.items) > 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.waiting, cmd = m.waiting.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "up", "k":
			m.follow = false
			if m.cursor > 0 {
				m.cursor--
				m.scrollToCursor()
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
				m.scrollToCursor()
			}
			// Reaching the newest entry resumes following.
			m.follow = m.cursor == len(m.items)-1
		case "g", "home":
			m.follow = false
			m.cursor = 0
			m.listScroll = 0
		case "G", "end":
			m.follow = true
			if len(m.items) > 0 {
				m.cursor = len(m.items) - 1
				m.scrollToCursor()
			}
		case "f":
			m.follow = !m.follow
			if m.follow && len(m.items) > 0 {
				m.cursor = len(m.items) - 1
				m.scrollToCursor()
			}
		}
	}

	return m, nil
}

// listHeight returns how many list rows fit in the current terminal.
func (m WatchModel) listHeight() int {
	// UI overhead: title (1) + header (1) + divider (1) + help (1) = 4 lines
	available := m.terminalHeight - 4
	if available < 8 {
		available = 8
	}
	h := available / 2
	if h < 2 {
		h = 2
	}
	return h
}

func (m *WatchModel) scrollToCursor() {
	h := m.listHeight()
	if m.cursor < m.listScroll {
		m.listScroll = m.cursor
	}
	if m.cursor >= m.listScroll+h {
		m.listScroll = m.cursor - h + 1
	}
}

// View renders the split view.
func (m WatchModel) View() string {
	if m.terminalHeight == 0 {
		return "Initializing..."
	}

	var b strings.Builder

	title := fmt.Sprintf("Sentinel - Live Alert Feed (%d alerts", len(m.items))
	if m.follow {
		title += ", following"
	}
	title += ")"
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	header := fmt.Sprintf("%s %s %s %s %s %s",
		TruncateAndPad("Time", timeWidth, false),
		TruncateAndPad("Source", endpointWidth, false),
		TruncateAndPad("Destination", endpointWidth, false),
		TruncateAndPad("Proto", protocolWidth, false),
		TruncateAndPad("Label", labelWidth, false),
		"Message",
	)
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	listHeight := m.listHeight()
	lines := m.renderList()
	visibleStart := m.listScroll
	visibleEnd := min(visibleStart+listHeight, len(lines))
	for i := visibleStart; i < visibleEnd; i++ {
		b.WriteString(lines[i])
		b.WriteString("\n")
	}
	for i := visibleEnd - visibleStart; i < listHeight; i++ {
		b.WriteString("\n")
	}

	divider := strings.Repeat("─", max(m.terminalWidth, 1))
	b.WriteString(dividerStyle.Render(divider))
	b.WriteString("\n")

	for _, line := range m.renderDetail() {
		b.WriteString(line)
		b.WriteString("\n")
	}

	help := "↑/↓ navigate • f follow • g/G top/bottom • q quit"
	if m.closed != nil {
		help = fmt.Sprintf("feed stopped: %v • q quit", m.closed)
	}
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

// renderList generates one line per alert, newest last.
func (m WatchModel) renderList() []string {
	fixed := timeWidth + 2*endpointWidth + protocolWidth + labelWidth + 10
	messageWidth := m.terminalWidth - fixed
	if messageWidth < 20 {
		messageWidth = 20
	}

	var lines []string
	for i, item := range m.items {
		row := fmt.Sprintf("%s %s %s %s %s %s",
			TruncateAndPad(item.Alert.Timestamp.Format("15:04:05"), timeWidth, false),
			TruncateAndPad(item.SourceEndpoint(), endpointWidth, true),
			TruncateAndPad(item.DestinationEndpoint(), endpointWidth, true),
			TruncateAndPad(item.Alert.Protocol, protocolWidth, false),
			TruncateAndPad(item.LabelText(), labelWidth, false),
			Truncate(item.Alert.Message, messageWidth, true),
		)

		style := normalStyle
		if item.IsAnomaly() {
			style = anomalyStyle
		}
		if i == m.cursor {
			lines = append(lines, cursorStyle.Render("► ")+style.Render(row))
		} else {
			lines = append(lines, "  "+style.Render(row))
		}
	}
	return lines
}

// renderDetail generates the detail panel for the selected alert.
func (m WatchModel) renderDetail() []string {
	if m.cursor >= len(m.items) {
		return []string{detailStyle.Render(m.waiting.View() + "Waiting for alerts...")}
	}

	item := m.items[m.cursor]
	alert := item.Alert

	var lines []string
	header := fmt.Sprintf("Alert: %s │ %s │ Confidence: %.2f │ Rule: %d",
		alert.ID, item.LabelText(), alert.Confidence, alert.RuleID)
	lines = append(lines, detailHeaderStyle.Render(header))
	lines = append(lines, "")

	lines = append(lines, detailStyle.Render(fmt.Sprintf("%s → %s (%s, source=%s)",
		item.SourceEndpoint(), item.DestinationEndpoint(), alert.Protocol, alert.Source)))
	lines = append(lines, detailStyle.Render(fmt.Sprintf("Observed %s, processed %s",
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		alert.ProcessedAt.Format("2006-01-02 15:04:05"))))
	lines = append(lines, "")

	width := m.terminalWidth - 4
	if width < 40 {
		width = 40
	}
	for _, line := range strings.Split(Wrap(alert.Message, width), "\n") {
		lines = append(lines, detailStyle.Render(line))
	}

	return lines
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
