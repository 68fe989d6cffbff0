package tui

import "github.com/charmbracelet/lipgloss"

// Styles for the watch view
var (
	// Title style - bold, no color so it works on light and dark terminals
	titleStyle = lipgloss.NewStyle().
			Bold(true)

	// Header style - bold and visually distinct
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).  // Bright blue
			Background(lipgloss.Color("236")). // Dark gray
			Padding(0, 1)

	// Normal traffic rows
	normalStyle = lipgloss.NewStyle().
			Padding(0, 1)

	// Anomaly rows - red and bold so they stand out in the feed
	anomalyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true).
			Padding(0, 1)

	// Cursor indicator
	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Divider between list and detail panel
	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")). // Dark gray
			Bold(true)

	// Detail panel header style
	detailHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("10")). // Bright green
				Padding(0, 1)

	// Detail body text - dimmed for readability
	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")). // Gray
			Padding(0, 1)

	// Help line
	helpStyle = lipgloss.NewStyle().
			Faint(true)

	// Column widths
	timeWidth     = 8
	endpointWidth = 21
	protocolWidth = 6
	labelWidth    = 8
)
