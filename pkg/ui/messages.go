// Package ui provides the Bubble Tea dashboard for savings runs.
package ui

import (
	"time"

	"github.com/fd1az/savings-bench/business/comparison/domain"
	"github.com/fd1az/savings-bench/pkg/ui/components"
)

// Message types for TUI updates

// RunStartMsg is sent once the run knows its matrix.
type RunStartMsg struct {
	RunID   string
	Primary string
	Venues  []string
	Cells   int
}

// RecordMsg is sent for every emitted savings record.
type RecordMsg struct {
	Record domain.SavingsRecord
}

// CellMsg is sent when a cell finishes.
type CellMsg struct {
	Cell     string
	State    string
	Records  int
	Failures map[string]string // venue -> error code
	Duration time.Duration
}

// VenuesMsg carries the per-venue totals so far.
// All values are pre-calculated by the reporter - UI should not calculate anything.
type VenuesMsg struct {
	Rows []components.VenueRow
}

// SummaryMsg is sent when the run ends.
type SummaryMsg struct {
	Cells    int
	Skipped  int
	Records  int
	Failures int
	Duration time.Duration
	Err      error
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// StartModulesMsg signals that the run should start.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}
