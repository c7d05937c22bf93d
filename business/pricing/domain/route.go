package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
)

var (
	hundred = decimal.NewFromInt(100)

	// SplitTolerance is the absolute slack allowed on a split's sum.
	SplitTolerance = decimal.RequireFromString("0.2")
)

// Split maps canonical DEX names to percent shares.
type Split map[string]decimal.Decimal

// Weight is one raw routing entry: a venue-local DEX name and either an
// amount routed through it or a share of the hop.
type Weight struct {
	Exchange string
	Value    decimal.Decimal
}

// SplitFromAmounts tallies amounts per DEX and converts them to percentages.
func SplitFromAmounts(names *ExchangeNameMap, venue string, weights []Weight) (Split, error) {
	tally, err := tallyWeights(names, venue, weights)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, v := range tally {
		total = total.Add(v)
	}
	if !total.IsPositive() {
		return nil, apperror.Malformed(venue, "route carries no volume")
	}

	s := make(Split, len(tally))
	for name, v := range tally {
		s[name] = asset.Ratio(v.Mul(hundred), total)
	}
	return s, nil
}

// SplitFromShares canonicalizes percent shares and validates their sum.
func SplitFromShares(names *ExchangeNameMap, venue string, shares []Weight) (Split, error) {
	tally, err := tallyWeights(names, venue, shares)
	if err != nil {
		return nil, err
	}
	s := Split(tally)
	if err := s.Validate(); err != nil {
		return nil, apperror.Malformed(venue, err.Error())
	}
	return s, nil
}

// tallyWeights sums weights per canonical name. Repeated spellings of one
// DEX are summed; two different spellings collapsing onto one canonical
// name are rejected. Zero weights are dropped.
func tallyWeights(names *ExchangeNameMap, venue string, weights []Weight) (map[string]decimal.Decimal, error) {
	tally := make(map[string]decimal.Decimal, len(weights))
	keyOf := make(map[string]string, len(weights))

	for _, w := range weights {
		if w.Value.IsNegative() {
			return nil, apperror.Malformed(venue, fmt.Sprintf("negative share for %s", w.Exchange))
		}
		if w.Value.IsZero() {
			continue
		}
		key := NameKey(w.Exchange)
		if key == "" {
			return nil, apperror.Malformed(venue, "route entry without exchange name")
		}
		canonical := names.Canonical(w.Exchange)
		if prev, ok := keyOf[canonical]; ok && prev != key {
			return nil, apperror.Malformed(venue,
				fmt.Sprintf("exchange names %q and %q both map to %s", prev, key, canonical))
		}
		keyOf[canonical] = key
		tally[canonical] = tally[canonical].Add(w.Value)
	}
	return tally, nil
}

// Validate checks that shares are non-negative and sum to 100 within
// SplitTolerance.
func (s Split) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("empty split")
	}
	sum := decimal.Zero
	for name, v := range s {
		if v.IsNegative() {
			return fmt.Errorf("negative share %s for %s", v, name)
		}
		sum = sum.Add(v)
	}
	if sum.Sub(hundred).Abs().GreaterThan(SplitTolerance) {
		return fmt.Errorf("shares sum to %s", sum)
	}
	return nil
}

// Names returns the DEX names in lexicographic order.
func (s Split) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// String renders {A: 60, B: 40} with sorted keys and shares rounded to four
// places.
func (s Split) String() string {
	parts := make([]string, 0, len(s))
	for _, name := range s.Names() {
		parts = append(parts, name+": "+s[name].Round(4).String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// HopLabel names a hop "<to>/<from>".
func HopLabel(from, to string) string {
	return to + "/" + from
}

// Route is either a single Split or, for multi-hop trades, one Split per hop
// label.
type Route struct {
	Split Split
	Hops  map[string]Split
}

// SingleVenueRoute is {name: 100}.
func SingleVenueRoute(name string) Route {
	return Route{Split: Split{name: hundred}}
}

// IsNested reports whether the route has per-hop splits.
func (r Route) IsNested() bool {
	return len(r.Hops) > 0
}

// IsZero reports whether the route is empty.
func (r Route) IsZero() bool {
	return len(r.Split) == 0 && len(r.Hops) == 0
}

// Validate checks every split of the route.
func (r Route) Validate() error {
	if r.IsNested() {
		for label, s := range r.Hops {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("hop %s: %w", label, err)
			}
		}
		return nil
	}
	return r.Split.Validate()
}

// Labels returns hop labels sorted.
func (r Route) Labels() []string {
	out := make([]string, 0, len(r.Hops))
	for label := range r.Hops {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Exchanges returns every DEX used anywhere in the route, sorted and unique.
func (r Route) Exchanges() []string {
	seen := make(map[string]struct{})
	add := func(s Split) {
		for name := range s {
			seen[name] = struct{}{}
		}
	}
	if r.IsNested() {
		for _, s := range r.Hops {
			add(s)
		}
	} else {
		add(r.Split)
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// String renders {Kyber: 100} or {DAI/ETH: {Uniswap: 100}, PAX/DAI: {...}}.
func (r Route) String() string {
	if !r.IsNested() {
		return r.Split.String()
	}
	parts := make([]string, 0, len(r.Hops))
	for _, label := range r.Labels() {
		parts = append(parts, label+": "+r.Hops[label].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
