package domain

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/fd1az/savings-bench/internal/apperror"
)

// ExchangeNameMap folds venue-local spellings of a DEX name onto one
// canonical name. Registration happens at startup; afterwards the map is
// read-only and safe for concurrent use.
type ExchangeNameMap struct {
	canonical map[string]string // name key -> canonical name
}

// NewExchangeNameMap creates an empty map.
func NewExchangeNameMap() *ExchangeNameMap {
	return &ExchangeNameMap{canonical: make(map[string]string)}
}

// NameKey is the lookup key of a spelling: lowercase letters and digits only.
func NameKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Register maps alias to canonical. The canonical name is registered to
// itself. Re-registering a key to a different canonical name is an error.
func (m *ExchangeNameMap) Register(alias, canonical string) error {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" || NameKey(canonical) == "" {
		return apperror.New(apperror.CodeExchangeAliasConflict, apperror.WithContext("empty canonical name"))
	}
	aliasKey := NameKey(alias)
	if aliasKey == "" {
		return apperror.New(apperror.CodeExchangeAliasConflict,
			apperror.WithContext(fmt.Sprintf("empty alias for %s", canonical)))
	}

	if err := m.bind(NameKey(canonical), canonical); err != nil {
		return err
	}
	return m.bind(aliasKey, canonical)
}

func (m *ExchangeNameMap) bind(key, canonical string) error {
	if existing, ok := m.canonical[key]; ok && existing != canonical {
		return apperror.New(apperror.CodeExchangeAliasConflict,
			apperror.WithContext(fmt.Sprintf("%q already maps to %s, not %s", key, existing, canonical)))
	}
	m.canonical[key] = canonical
	return nil
}

// RegisterAll registers every alias group, stopping at the first conflict.
func (m *ExchangeNameMap) RegisterAll(groups map[string][]string) error {
	canonicals := make([]string, 0, len(groups))
	for c := range groups {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)

	for _, c := range canonicals {
		if err := m.Register(c, c); err != nil {
			return err
		}
		for _, alias := range groups[c] {
			if err := m.Register(alias, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Canonical returns the canonical name for name. Unknown names pass through
// trimmed.
func (m *ExchangeNameMap) Canonical(name string) string {
	if c, ok := m.canonical[NameKey(name)]; ok {
		return c
	}
	return strings.TrimSpace(name)
}

// Known reports whether name has a registered spelling.
func (m *ExchangeNameMap) Known(name string) bool {
	_, ok := m.canonical[NameKey(name)]
	return ok
}

// DefaultExchangeAliases are the built-in DEX spellings seen across venues.
var DefaultExchangeAliases = map[string][]string{
	"Uniswap":     {"UNISWAP", "Uniswap V1", "uniswap_v1"},
	"Uniswap V2":  {"UNISWAP_V2", "Uniswap_V2", "UniswapV2"},
	"Uniswap V3":  {"UNISWAP_V3", "Uniswap_V3", "UniswapV3"},
	"SushiSwap":   {"SUSHI", "Sushi"},
	"Kyber":       {"KYBER", "Kyber Network", "Kyber_Network", "KyberSwap"},
	"Curve":       {"CURVE", "Curve.fi", "Curve Finance", "CURVE_V2"},
	"Balancer":    {"BALANCER", "Balancer V1"},
	"Bancor":      {"BANCOR", "Bancor Network"},
	"Oasis":       {"OASIS", "OasisDEX", "Eth2Dai", "Oasis Trade"},
	"0x":          {"ZEROX", "0x API", "0x Protocol", "ZeroExV4"},
	"Radar Relay": {"RADAR_RELAY", "RadarRelay"},
	"DODO":        {"DODO_V2"},
	"Mooniswap":   {"MOONISWAP", "1inch LP"},
	"Binance":     {"BINANCE"},
}

// DefaultExchangeNameMap returns a map holding DefaultExchangeAliases.
func DefaultExchangeNameMap() *ExchangeNameMap {
	m := NewExchangeNameMap()
	if err := m.RegisterAll(DefaultExchangeAliases); err != nil {
		panic(err)
	}
	return m
}
