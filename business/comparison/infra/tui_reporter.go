// Package infra contains infrastructure adapters for the comparison context.
package infra

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/savings-bench/business/comparison/app"
	"github.com/fd1az/savings-bench/business/comparison/domain"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/pkg/ui"
	"github.com/fd1az/savings-bench/pkg/ui/components"
)

// TUIReporter implements Reporter for the Bubble Tea dashboard. It keeps the
// per-venue totals so the UI only displays them.
type TUIReporter struct {
	send   func(tea.Msg)
	order  []string
	venues map[string]*app.VenueStats
}

// NewTUIReporter creates a TUIReporter that sends to the running program.
func NewTUIReporter() *TUIReporter {
	return NewTUIReporterWith(ui.Send)
}

// NewTUIReporterWith creates a TUIReporter that hands messages to send.
func NewTUIReporterWith(send func(tea.Msg)) *TUIReporter {
	return &TUIReporter{send: send, venues: make(map[string]*app.VenueStats)}
}

// Start announces the run.
func (r *TUIReporter) Start(ctx context.Context, run app.RunInfo) error {
	r.order = r.order[:0]
	r.venues = make(map[string]*app.VenueStats)
	for _, v := range run.Venues {
		r.venue(v)
	}
	r.send(ui.RunStartMsg{RunID: run.RunID, Primary: run.Primary, Venues: run.Venues, Cells: run.Cells})
	return nil
}

// Report sends a record to the dashboard.
func (r *TUIReporter) Report(rec domain.SavingsRecord) {
	v := r.venue(rec.Venue)
	v.Records++
	v.SumPct = v.SumPct.Add(rec.PctSavings)
	switch rec.Verdict() {
	case domain.VerdictPrimaryBetter:
		v.PrimaryBetter++
	case domain.VerdictComparisonBetter:
		v.ComparisonBetter++
	}
	r.send(ui.RecordMsg{Record: rec})
}

// ReportCell sends the finished cell and refreshed venue totals.
func (r *TUIReporter) ReportCell(report app.CellReport) {
	failures := make(map[string]string, len(report.Failures))
	for venue, code := range report.Failures {
		failures[venue] = string(code)
		if report.State != app.CellPrimaryAbsent {
			r.venue(venue).Failures[code]++
		}
	}
	r.send(ui.CellMsg{
		Cell:     report.Cell.String(),
		State:    string(report.State),
		Records:  report.Records,
		Failures: failures,
		Duration: report.Duration,
	})
	r.send(ui.VenuesMsg{Rows: r.rows()})
}

// ReportSummary sends the run totals.
func (r *TUIReporter) ReportSummary(s app.Summary) {
	r.send(ui.SummaryMsg{
		Cells:    s.Cells,
		Skipped:  s.Skipped,
		Records:  s.Records,
		Failures: s.Failures(),
		Duration: s.Duration,
	})
}

// Stop is a no-op; the program outlives the run so the summary stays visible.
func (r *TUIReporter) Stop() error {
	return nil
}

func (r *TUIReporter) venue(name string) *app.VenueStats {
	v, ok := r.venues[name]
	if !ok {
		v = &app.VenueStats{Failures: make(map[apperror.Code]int)}
		r.venues[name] = v
		r.order = append(r.order, name)
	}
	return v
}

func (r *TUIReporter) rows() []components.VenueRow {
	rows := make([]components.VenueRow, 0, len(r.order))
	for _, name := range r.order {
		v := r.venues[name]
		failed := 0
		for _, n := range v.Failures {
			failed += n
		}
		rows = append(rows, components.VenueRow{
			Name:             name,
			Records:          v.Records,
			PrimaryBetter:    v.PrimaryBetter,
			ComparisonBetter: v.ComparisonBetter,
			MeanPct:          v.MeanPct(),
			Failures:         failed,
		})
	}
	return rows
}
