// Package infra contains infrastructure adapters for the comparison context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fd1az/savings-bench/business/comparison/app"
	"github.com/fd1az/savings-bench/business/comparison/domain"
)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	out     io.Writer
	verbose bool
}

// NewConsoleReporter creates a ConsoleReporter writing to stdout. Verbose
// also prints cells that produced no record.
func NewConsoleReporter(verbose bool) *ConsoleReporter {
	return NewConsoleReporterTo(os.Stdout, verbose)
}

// NewConsoleReporterTo creates a ConsoleReporter writing to out.
func NewConsoleReporterTo(out io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{out: out, verbose: verbose}
}

// Start prints the run header.
func (r *ConsoleReporter) Start(ctx context.Context, run app.RunInfo) error {
	fmt.Fprintln(r.out, "Savings Bench Started")
	fmt.Fprintln(r.out, "=====================")
	fmt.Fprintf(r.out, "Run:      %s\n", run.RunID)
	fmt.Fprintf(r.out, "Primary:  %s\n", run.Primary)
	fmt.Fprintf(r.out, "Venues:   %s\n", strings.Join(run.Venues, ", "))
	fmt.Fprintf(r.out, "Cells:    %d (%s)\n", run.Cells, run.Side)
	return nil
}

// Report prints one trace line per record.
func (r *ConsoleReporter) Report(rec domain.SavingsRecord) {
	fmt.Fprintf(r.out, "[%s] %s %s %s/%s  %-12s primary %s  venue %s  savings %s%%  (%s)\n",
		rec.Time.Format("15:04:05"),
		rec.Side, rec.TradeSize, rec.Base, rec.Quote,
		rec.Venue,
		rec.PrimaryPrice.StringFixed(10),
		rec.VenuePrice.StringFixed(10),
		rec.PctSavings.StringFixed(4),
		rec.Verdict(),
	)
}

// ReportCell prints skipped cells and venue failures in verbose mode.
func (r *ConsoleReporter) ReportCell(report app.CellReport) {
	if !r.verbose {
		return
	}
	if report.State == app.CellPrimaryAbsent {
		fmt.Fprintf(r.out, "[%s] %s skipped: %v\n", time.Now().Format("15:04:05"), report.Cell, report.Err)
		return
	}
	venues := make([]string, 0, len(report.Failures))
	for v := range report.Failures {
		venues = append(venues, v)
	}
	sort.Strings(venues)
	for _, v := range venues {
		fmt.Fprintf(r.out, "[%s] %s %s: %s\n", time.Now().Format("15:04:05"), report.Cell, v, report.Failures[v])
	}
}

// ReportSummary prints per-venue totals.
func (r *ConsoleReporter) ReportSummary(s app.Summary) {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintln(r.out, "RUN SUMMARY")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintf(r.out, "Run:            %s\n", s.RunID)
	fmt.Fprintf(r.out, "Duration:       %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(r.out, "Cells:          %d (%d skipped)\n", s.Cells, s.Skipped)
	fmt.Fprintf(r.out, "Records:        %d\n", s.Records)
	fmt.Fprintf(r.out, "Failed quotes:  %d\n", s.Failures())
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintf(r.out, "  %-14s %8s %8s %8s %12s  %s\n", "Venue", "Records", "Primary", "Venue", "Mean %", "Failures")
	for _, name := range s.VenueNames() {
		v := s.Venues[name]
		fmt.Fprintf(r.out, "  %-14s %8d %8d %8d %12s  %s\n",
			name, v.Records, v.PrimaryBetter, v.ComparisonBetter, v.MeanPct().StringFixed(4), failureList(v))
	}
	fmt.Fprintln(r.out, "================================================================================")
}

func failureList(v *app.VenueStats) string {
	if len(v.Failures) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(v.Failures))
	for code, n := range v.Failures {
		parts = append(parts, fmt.Sprintf("%s=%d", code, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// Stop gracefully shuts down the console reporter.
func (r *ConsoleReporter) Stop() error {
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Savings Bench Stopped")
	return nil
}
