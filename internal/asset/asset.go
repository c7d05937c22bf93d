package asset

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxDecimals bounds the decimal scale accepted from token sources.
const MaxDecimals = 36

// Asset is one registry entry. Two entries are the same token when their
// ids match; the symbol is only the lookup key.
type Asset struct {
	id       AssetID
	symbol   string
	name     string
	decimals uint8
	tradable bool
}

// NewAsset registers symbol in canonical form. It panics on an empty symbol
// or a scale beyond MaxDecimals; sources validate both before calling.
func NewAsset(id AssetID, symbol string, decimals uint8) *Asset {
	sym := CanonicalSymbol(symbol)
	switch {
	case sym == "":
		panic("asset: empty symbol")
	case decimals > MaxDecimals:
		panic(fmt.Sprintf("asset: %s has %d decimals", sym, decimals))
	}
	return &Asset{id: id, symbol: sym, decimals: decimals, tradable: true}
}

func NewAssetWithName(id AssetID, symbol, name string, decimals uint8) *Asset {
	a := NewAsset(id, symbol, decimals)
	a.name = name
	return a
}

// CanonicalSymbol is the registry key for a user or venue spelling.
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (a *Asset) ID() AssetID             { return a.id }
func (a *Asset) Symbol() string          { return a.symbol }
func (a *Asset) Decimals() uint8         { return a.decimals }
func (a *Asset) IsNative() bool          { return a.id.IsNative() }
func (a *Asset) Address() common.Address { return a.id.Address() }
func (a *Asset) AddressHex() string      { return a.id.Hex() }
func (a *Asset) String() string          { return a.symbol }

// Tradable entries are swept when an experiment lists no tokens.
func (a *Asset) Tradable() bool { return a.tradable }

func (a *Asset) Name() string {
	if a.name != "" {
		return a.name
	}
	return a.symbol
}

func (a *Asset) Equals(other *Asset) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.id == other.id
}
