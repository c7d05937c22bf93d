// Package asset is the token registry: canonical symbols, addresses,
// decimal scales and the integer/real amount conversions built on them.
// Integer amounts are big.Int in the smallest unit; real amounts are
// decimal.Decimal.
package asset

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ChainIDEthereum is the only chain the registry models.
const ChainIDEthereum = 1

// AssetID is a (chain, contract) pair. ETH and other native coins use the
// zero address.
type AssetID struct {
	chainID uint64
	address common.Address
}

func NewNativeAssetID(chainID uint64) AssetID {
	return AssetID{chainID: chainID}
}

// NewTokenAssetID panics on the zero address, which is reserved for the
// native coin.
func NewTokenAssetID(chainID uint64, addr common.Address) AssetID {
	if addr == (common.Address{}) {
		panic("asset: zero token address is the native coin")
	}
	return AssetID{chainID: chainID, address: addr}
}

func (id AssetID) ChainID() uint64         { return id.chainID }
func (id AssetID) Address() common.Address { return id.address }
func (id AssetID) IsNative() bool          { return id.address == common.Address{} }

// Hex is the lowercase address, the form token sources are matched on.
func (id AssetID) Hex() string { return strings.ToLower(id.address.Hex()) }

func (id AssetID) String() string {
	if id.IsNative() {
		return fmt.Sprintf("%d:native", id.chainID)
	}
	return fmt.Sprintf("%d:%s", id.chainID, id.Hex())
}

func (id AssetID) Equals(other AssetID) bool { return id == other }
