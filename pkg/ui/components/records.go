// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// RecordRow represents a savings record in the list.
type RecordRow struct {
	Time          string
	Cell          string
	Venue         string
	PrimaryPrice  decimal.Decimal
	VenuePrice    decimal.Decimal
	PctSavings    decimal.Decimal
	PrimaryBetter bool
}

// RecordsComponent renders the most recent records, newest first.
type RecordsComponent struct {
	rows    []RecordRow
	maxRows int
	visible int
	offset  int
}

// NewRecordsComponent keeps up to maxRows records and shows visible of them.
func NewRecordsComponent(maxRows, visible int) *RecordsComponent {
	return &RecordsComponent{
		rows:    make([]RecordRow, 0),
		maxRows: maxRows,
		visible: visible,
	}
}

// Add adds a new record to the top of the list.
func (r *RecordsComponent) Add(row RecordRow) {
	r.rows = append([]RecordRow{row}, r.rows...)
	if len(r.rows) > r.maxRows {
		r.rows = r.rows[:r.maxRows]
	}
	if r.offset > 0 {
		r.offset = min(r.offset+1, r.maxOffset())
	}
}

// Len returns the number of stored records.
func (r *RecordsComponent) Len() int {
	return len(r.rows)
}

// Clear clears all records.
func (r *RecordsComponent) Clear() {
	r.rows = make([]RecordRow, 0)
	r.offset = 0
}

func (r *RecordsComponent) ScrollUp() {
	if r.offset > 0 {
		r.offset--
	}
}

func (r *RecordsComponent) ScrollDown() {
	if r.offset < r.maxOffset() {
		r.offset++
	}
}

func (r *RecordsComponent) maxOffset() int {
	return max(len(r.rows)-r.visible, 0)
}

// View renders the records component.
func (r *RecordsComponent) View() string {
	if len(r.rows) == 0 {
		return "No savings records yet..."
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	primaryStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	venueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	end := min(r.offset+r.visible, len(r.rows))
	result := headerStyle.Render(fmt.Sprintf("RECORDS (%d-%d of %d)\n", r.offset+1, end, len(r.rows)))
	result += "┌──────────┬──────────────────────┬────────────┬────────────────┬────────────────┬──────────┐\n"
	result += "│   Time   │         Cell         │   Venue    │    Primary     │     Venue      │ Savings  │\n"
	result += "├──────────┼──────────────────────┼────────────┼────────────────┼────────────────┼──────────┤\n"

	for _, row := range r.rows[r.offset:end] {
		style := primaryStyle
		if !row.PrimaryBetter {
			style = venueStyle
		}
		result += fmt.Sprintf("│ %8s │ %-20s │ %-10s │ %14s │ %14s │ %s │\n",
			row.Time,
			truncate(row.Cell, 20),
			truncate(row.Venue, 10),
			row.PrimaryPrice.StringFixed(8),
			row.VenuePrice.StringFixed(8),
			style.Render(fmt.Sprintf("%+7.3f%%", row.PctSavings.InexactFloat64())),
		)
	}

	result += "└──────────┴──────────────────────┴────────────┴────────────────┴────────────────┴──────────┘"
	return result
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
