package app

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/business/comparison/domain"
	pricingApp "github.com/fd1az/savings-bench/business/pricing/app"
	pricingDomain "github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
)

// Experiment is the matrix of cells a run sweeps. Trade sizes are in Quote
// units on both sides.
type Experiment struct {
	Quote      string
	Tokens     []string
	TradeSizes []decimal.Decimal
	Side       pricingDomain.Side
	// TokensOuter iterates tokens in the outer loop, sizes otherwise.
	TokensOuter bool
}

// Validate rejects an experiment that cannot produce a cell.
func (e Experiment) Validate() error {
	if e.Quote == "" {
		return apperror.Configuration("experiment has no quote token")
	}
	if len(e.Tokens) == 0 {
		return apperror.Configuration("experiment has no tokens")
	}
	if len(e.TradeSizes) == 0 {
		return apperror.Configuration("experiment has no trade sizes")
	}
	for _, s := range e.TradeSizes {
		if !s.IsPositive() {
			return apperror.Configuration(fmt.Sprintf("trade size %s is not positive", s))
		}
	}
	if !e.Side.Valid() {
		return apperror.Configuration(fmt.Sprintf("side %q is neither buy nor sell", e.Side))
	}
	return nil
}

// Cells expands the matrix in run order. Tokens equal to the quote are left
// out.
func (e Experiment) Cells() []domain.Cell {
	quote := asset.CanonicalSymbol(e.Quote)
	tokens := make([]string, 0, len(e.Tokens))
	for _, t := range e.Tokens {
		if t = asset.CanonicalSymbol(t); t != quote {
			tokens = append(tokens, t)
		}
	}

	cells := make([]domain.Cell, 0, len(tokens)*len(e.TradeSizes))
	cell := func(t string, s decimal.Decimal) domain.Cell {
		return domain.Cell{Base: t, Quote: quote, TradeSize: s, Side: e.Side}
	}
	if e.TokensOuter {
		for _, t := range tokens {
			for _, s := range e.TradeSizes {
				cells = append(cells, cell(t, s))
			}
		}
		return cells
	}
	for _, s := range e.TradeSizes {
		for _, t := range tokens {
			cells = append(cells, cell(t, s))
		}
	}
	return cells
}

// RequiredDirection is the amount direction every venue must accept for side.
func RequiredDirection(side pricingDomain.Side) pricingApp.Directions {
	if side == pricingDomain.SideSell {
		return pricingApp.DirectionTo
	}
	return pricingApp.DirectionFrom
}

// requestFor builds the quote request of a cell: a buy spends the trade size
// of the quote token, a sell receives it.
func requestFor(c domain.Cell) pricingApp.QuoteRequest {
	if c.Side == pricingDomain.SideSell {
		return pricingApp.SellRequest(c.Base, c.Quote, c.TradeSize)
	}
	return pricingApp.BuyRequest(c.Quote, c.Base, c.TradeSize)
}

// VenueStats aggregates one venue's records and failures.
type VenueStats struct {
	Records          int
	PrimaryBetter    int
	ComparisonBetter int
	SumPct           decimal.Decimal
	Failures         map[apperror.Code]int
}

// MeanPct is the average savings over the venue's records.
func (v *VenueStats) MeanPct() decimal.Decimal {
	if v.Records == 0 {
		return decimal.Zero
	}
	return v.SumPct.Div(decimal.NewFromInt(int64(v.Records)))
}

// Summary is the outcome of a run.
type Summary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Cells    int
	Skipped  int
	Records  int
	Venues   map[string]*VenueStats
}

func newSummary(runID string, started time.Time) Summary {
	return Summary{RunID: runID, Started: started, Venues: make(map[string]*VenueStats)}
}

func (s *Summary) venue(name string) *VenueStats {
	v, ok := s.Venues[name]
	if !ok {
		v = &VenueStats{Failures: make(map[apperror.Code]int)}
		s.Venues[name] = v
	}
	return v
}

// VenueNames returns the venues seen, sorted.
func (s Summary) VenueNames() []string {
	out := make([]string, 0, len(s.Venues))
	for name := range s.Venues {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Failures returns the total failure count.
func (s Summary) Failures() int {
	n := 0
	for _, v := range s.Venues {
		for _, c := range v.Failures {
			n += c
		}
	}
	return n
}
