// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// VenueRow represents a venue's running totals.
type VenueRow struct {
	Name             string
	Records          int
	PrimaryBetter    int
	ComparisonBetter int
	MeanPct          decimal.Decimal
	Failures         int
}

// VenuesComponent renders the per-venue savings table.
type VenuesComponent struct {
	rows    []VenueRow
	primary string
}

// NewVenuesComponent creates a new venues component.
func NewVenuesComponent() *VenuesComponent {
	return &VenuesComponent{
		rows: make([]VenueRow, 0),
	}
}

// Update replaces the venue rows.
func (v *VenuesComponent) Update(rows []VenueRow) {
	v.rows = rows
}

// SetPrimary sets the name of the venue everything is compared against.
func (v *VenuesComponent) SetPrimary(name string) {
	v.primary = name
}

// View renders the venues component.
func (v *VenuesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	positiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	negativeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	result := headerStyle.Render(fmt.Sprintf("SAVINGS VS %s", strings.ToUpper(v.primary)))
	result += "\n\n"

	if len(v.rows) == 0 {
		return result + dimStyle.Render("  Waiting for quotes...")
	}

	result += fmt.Sprintf("  %-12s  %7s  %7s  %7s  %10s  %6s\n",
		"Venue", "Records", "Primary", "Venue", "Mean", "Failed")
	result += dimStyle.Render("  "+strings.Repeat("─", 58)) + "\n"

	for _, row := range v.rows {
		meanStyle := positiveStyle
		if row.MeanPct.IsNegative() {
			meanStyle = negativeStyle
		}
		failed := fmt.Sprintf("%6d", row.Failures)
		if row.Failures > 0 {
			failed = negativeStyle.Render(failed)
		}

		result += fmt.Sprintf("  %-12s  %7d  %7d  %7d  %s  %s\n",
			truncate(row.Name, 12),
			row.Records,
			row.PrimaryBetter,
			row.ComparisonBetter,
			meanStyle.Render(fmt.Sprintf("%+9.3f%%", row.MeanPct.InexactFloat64())),
			failed,
		)
	}

	result += "\n"
	result += dimStyle.Render("  Primary/Venue: records where that side was cheaper") + "\n"
	return result
}
