// Package app contains the comparison runner and its ports.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/fd1az/savings-bench/business/comparison/domain"
	pricingDomain "github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/internal/apperror"
)

// Sink receives records in emission order. Implementations serialize their
// own appends.
type Sink interface {
	Append(ctx context.Context, rec domain.SavingsRecord) error
	Close() error
}

// MultiSink appends every record to each sink in order.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, rec domain.SavingsRecord) error {
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// CellState is where a cell ended.
type CellState string

const (
	CellPrimaryPending CellState = "primary-pending"
	CellPrimaryAbsent  CellState = "primary-absent"
	CellPrimaryQuoted  CellState = "primary-quoted"
	CellFanOut         CellState = "fan-out"
	CellRecordsEmitted CellState = "records-emitted"
)

// CellReport describes one finished cell.
type CellReport struct {
	Cell     domain.Cell
	State    CellState
	Primary  *pricingDomain.PricedQuote // nil when absent
	Records  int
	Failures map[string]apperror.Code // venue -> failure kind
	Err      error                    // why the primary was absent
	Duration time.Duration
}

// RunInfo describes a run as it starts.
type RunInfo struct {
	RunID   string
	Primary string
	Venues  []string
	Side    pricingDomain.Side
	Cells   int
}

// Reporter displays progress. Calls come from the runner goroutine only.
type Reporter interface {
	// Start initializes the reporter.
	Start(ctx context.Context, run RunInfo) error

	// Report shows one record as it is emitted.
	Report(rec domain.SavingsRecord)

	// ReportCell shows a finished cell.
	ReportCell(report CellReport)

	// ReportSummary shows the totals once the run ends.
	ReportSummary(summary Summary)

	// Stop gracefully shuts down the reporter.
	Stop() error
}

type nopReporter struct{}

func (nopReporter) Start(context.Context, RunInfo) error { return nil }
func (nopReporter) Report(domain.SavingsRecord)          {}
func (nopReporter) ReportCell(CellReport)                {}
func (nopReporter) ReportSummary(Summary)                {}
func (nopReporter) Stop() error                          { return nil }
