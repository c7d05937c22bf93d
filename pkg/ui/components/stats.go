// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds run progress for display.
type Stats struct {
	CellsDone  int
	CellsTotal int
	Skipped    int
	Records    int
	Failures   int
	Elapsed    time.Duration
}

// StatsComponent renders run progress.
type StatsComponent struct {
	stats Stats
	width int
}

// NewStatsComponent creates a new stats component with a bar of width cells.
func NewStatsComponent(width int) *StatsComponent {
	return &StatsComponent{width: width}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// Stats returns the current statistics.
func (s *StatsComponent) Stats() Stats {
	return s.stats
}

// Bar renders the progress bar only.
func (s *StatsComponent) Bar() string {
	filled := 0
	if s.stats.CellsTotal > 0 {
		filled = s.width * min(s.stats.CellsDone, s.stats.CellsTotal) / s.stats.CellsTotal
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", s.width-filled)
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	failuresDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.Failures))
	if s.stats.Failures > 0 {
		failuresDisplay = errorStyle.Render(fmt.Sprintf("%d", s.stats.Failures))
	}

	return style.Render("PROGRESS") + "\n" +
		barStyle.Render(s.Bar()) +
		fmt.Sprintf(" %s / %s cells\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.CellsDone)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.CellsTotal)),
		) +
		fmt.Sprintf("Records: %s  │  Skipped: %s  │  Failed quotes: %s  │  Elapsed: %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Records)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Skipped)),
			failuresDisplay,
			valueStyle.Render(s.stats.Elapsed.Round(time.Second).String()),
		)
}
