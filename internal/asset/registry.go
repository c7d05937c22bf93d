package asset

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/logger"
)

// Registry maps canonical symbols to tokens. It is immutable once built and
// safe for concurrent reads without locking.
type Registry struct {
	bySymbol  map[string]*Asset
	byAddress map[common.Address]*Asset
	order     []string
}

// RegistryOption configures registry construction.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	log logger.LoggerInterface
}

// WithLogger reports skipped secondary entries at debug level.
func WithLogger(log logger.LoggerInterface) RegistryOption {
	return func(o *registryOptions) {
		o.log = log
	}
}

func newEmptyRegistry() *Registry {
	r := &Registry{
		bySymbol:  make(map[string]*Asset),
		byAddress: make(map[common.Address]*Asset),
	}
	r.add(ETH)
	return r
}

// NewRegistry builds a registry from ready-made assets. ETH is always
// present. Duplicate symbols or addresses are configuration errors.
func NewRegistry(assets ...*Asset) (*Registry, error) {
	r := newEmptyRegistry()
	for _, a := range assets {
		if a == nil || a.Symbol() == ETH.Symbol() {
			continue
		}
		if err := r.conflict(a); err != nil {
			return nil, err
		}
		r.add(a)
	}
	return r, nil
}

// NewRegistryFromSources builds a registry from a primary source overlaid
// with an optional secondary one. Primary entries win: secondary entries
// whose symbol or address is already taken are skipped.
func NewRegistryFromSources(primary, secondary []SourceEntry, opts ...RegistryOption) (*Registry, error) {
	o := &registryOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if len(primary) == 0 {
		return nil, apperror.Configuration("primary token source is empty")
	}

	r := newEmptyRegistry()
	for _, e := range primary {
		a, err := e.toAsset()
		if err != nil {
			return nil, err
		}
		if a.Symbol() == ETH.Symbol() {
			continue
		}
		if err := r.conflict(a); err != nil {
			return nil, err
		}
		r.add(a)
	}

	for _, e := range secondary {
		a, err := e.toAsset()
		if err != nil {
			return nil, err
		}
		if err := r.conflict(a); err != nil {
			if o.log != nil {
				o.log.Debug(context.Background(), "secondary token entry skipped",
					"symbol", a.Symbol(), "address", a.AddressHex(), "reason", err.Error())
			}
			continue
		}
		r.add(a)
	}

	return r, nil
}

func (r *Registry) conflict(a *Asset) error {
	if _, ok := r.bySymbol[a.Symbol()]; ok {
		return apperror.Configuration(fmt.Sprintf("duplicate token symbol %s", a.Symbol()))
	}
	if other, ok := r.byAddress[a.Address()]; ok {
		return apperror.Configuration(fmt.Sprintf("address %s of %s already registered to %s",
			a.AddressHex(), a.Symbol(), other.Symbol()))
	}
	return nil
}

func (r *Registry) add(a *Asset) {
	r.bySymbol[a.Symbol()] = a
	r.byAddress[a.Address()] = a
	r.order = append(r.order, a.Symbol())
}

// Canonical returns the registered spelling of symbol.
func (r *Registry) Canonical(symbol string) (string, error) {
	a, err := r.Lookup(symbol)
	if err != nil {
		return "", err
	}
	return a.Symbol(), nil
}

// Lookup returns the asset registered under symbol.
func (r *Registry) Lookup(symbol string) (*Asset, error) {
	sym := CanonicalSymbol(symbol)
	a, ok := r.bySymbol[sym]
	if !ok {
		return nil, apperror.UnknownToken(sym)
	}
	return a, nil
}

// ByAddress returns the asset at addr.
func (r *Registry) ByAddress(addr common.Address) (*Asset, error) {
	a, ok := r.byAddress[addr]
	if !ok {
		return nil, apperror.UnknownToken(addr.Hex())
	}
	return a, nil
}

// Resolve finds a token by hex address, or by symbol when no address is
// given. The native placeholder address resolves to ETH.
func (r *Registry) Resolve(addrHex, symbol string) (*Asset, error) {
	if common.IsHexAddress(addrHex) {
		addr := common.HexToAddress(addrHex)
		if addr == AddrNativePlaceholder {
			addr = common.Address{}
		}
		return r.ByAddress(addr)
	}
	if symbol != "" {
		return r.Lookup(symbol)
	}
	return nil, apperror.UnknownToken(addrHex)
}

func (r *Registry) Address(symbol string) (common.Address, error) {
	a, err := r.Lookup(symbol)
	if err != nil {
		return common.Address{}, err
	}
	return a.Address(), nil
}

func (r *Registry) Decimals(symbol string) (uint8, error) {
	a, err := r.Lookup(symbol)
	if err != nil {
		return 0, err
	}
	return a.Decimals(), nil
}

// ToInteger converts a real amount to integer units, truncating toward zero.
func (r *Registry) ToInteger(real decimal.Decimal, symbol string) (*big.Int, error) {
	a, err := r.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	amt, err := FromReal(a, real)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext(real.String()), apperror.WithCause(err))
	}
	return amt.Raw(), nil
}

// ToReal converts integer units to an exact real amount.
func (r *Registry) ToReal(i *big.Int, symbol string) (decimal.Decimal, error) {
	a, err := r.Lookup(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if i == nil || i.Sign() < 0 {
		return decimal.Zero, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("negative or nil integer amount"))
	}
	return NewAmount(a, i).ToDecimal(), nil
}

// Tradable returns the tradable symbols other than ETH, sorted.
func (r *Registry) Tradable() []string {
	out := make([]string, 0, len(r.order))
	for _, sym := range r.order {
		a := r.bySymbol[sym]
		if a.Tradable() && !a.IsNative() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// All returns every asset in registration order.
func (r *Registry) All() []*Asset {
	out := make([]*Asset, 0, len(r.order))
	for _, sym := range r.order {
		out = append(out, r.bySymbol[sym])
	}
	return out
}

func (r *Registry) Count() int {
	return len(r.order)
}
