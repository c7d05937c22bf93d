package asset

import "github.com/ethereum/go-ethereum/common"

// ETH is the native-coin sentinel: zero address, 18 decimals.
var ETH = NewAssetWithName(NewNativeAssetID(ChainIDEthereum), "ETH", "Ethereum", 18)

// Mainnet addresses used by on-chain venues.
var (
	AddrWETH = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")

	// AddrNativePlaceholder is how aggregator APIs spell the native coin.
	AddrNativePlaceholder = common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
)

// WellKnown is the built-in token list used when no secondary source is
// configured.
var WellKnown = []SourceEntry{
	{Symbol: "WETH", Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Decimals: 18},
	{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
	{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
	{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
	{Symbol: "WBTC", Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Decimals: 8},
	{Symbol: "BAT", Address: "0x0d8775f648430679a709e98d2b0cb6250d2887ef", Decimals: 18},
	{Symbol: "PAX", Address: "0x8e870d67f660d95d5be530380d0ec0bd388289e1", Decimals: 18},
	{Symbol: "MKR", Address: "0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2", Decimals: 18},
	{Symbol: "KNC", Address: "0xdd974d5c2e2928dea5f71b9825b8b646686bd200", Decimals: 18},
	{Symbol: "ZRX", Address: "0xe41d2489571d322189246dafa5ebde1f4699f498", Decimals: 18},
	{Symbol: "LINK", Address: "0x514910771af9ca656af840dff83e8264ecf986ca", Decimals: 18},
}

// DefaultRegistry returns a registry of ETH plus WellKnown.
func DefaultRegistry() *Registry {
	r, err := NewRegistryFromSources(WellKnown, nil)
	if err != nil {
		panic(err)
	}
	return r
}
