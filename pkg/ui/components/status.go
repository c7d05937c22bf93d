// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// VenueStatus is the outcome of a venue's latest quote.
type VenueStatus struct {
	Name     string
	OK       bool
	LastCode string // error code when !OK
	LastCell string
	At       time.Time
}

// StatusComponent renders each venue's latest outcome.
type StatusComponent struct {
	venues []VenueStatus
}

// NewStatusComponent creates a new status component.
func NewStatusComponent() *StatusComponent {
	return &StatusComponent{
		venues: make([]VenueStatus, 0),
	}
}

// Update replaces a venue's status, keeping first-seen order.
func (s *StatusComponent) Update(status VenueStatus) {
	for i, v := range s.venues {
		if v.Name == status.Name {
			s.venues[i] = status
			return
		}
	}
	s.venues = append(s.venues, status)
}

// View renders the status component.
func (s *StatusComponent) View() string {
	if len(s.venues) == 0 {
		return "No venues quoted yet"
	}

	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var result string
	for _, v := range s.venues {
		status := okStyle.Render("● quoting")
		if !v.OK {
			status = failStyle.Render("○ " + v.LastCode)
		}
		line := fmt.Sprintf("├─ %s: %s", v.Name, status)
		if v.LastCell != "" {
			line += dimStyle.Render(fmt.Sprintf(" (%s, %s)", v.LastCell, v.At.Format("15:04:05")))
		}
		result += line + "\n"
	}
	return result
}
