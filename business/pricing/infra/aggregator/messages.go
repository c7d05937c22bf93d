package aggregator

import (
	"github.com/shopspring/decimal"
)

// swapRequest is the POST /swap body. Exactly one amount is set; amounts are
// integer strings in the token's smallest unit.
type swapRequest struct {
	Swap   swapParams  `json:"swap"`
	Config *swapConfig `json:"config,omitempty"`
}

type swapParams struct {
	SourceAsset       string `json:"sourceAsset"`
	DestinationAsset  string `json:"destinationAsset"`
	SourceAmount      string `json:"sourceAmount,omitempty"`
	DestinationAmount string `json:"destinationAmount,omitempty"`
}

type swapConfig struct {
	Exchanges exchangeFilter `json:"exchanges"`
}

// exchangeFilter restricts routing; Type "white" keeps only List.
type exchangeFilter struct {
	List []string `json:"list"`
	Type string   `json:"type"`
}

type swapResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Summary *wireSummary `json:"summary"`
}

type wireAsset struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type wireSummary struct {
	SourceAsset       wireAsset   `json:"sourceAsset"`
	SourceAmount      string      `json:"sourceAmount"`
	DestinationAsset  wireAsset   `json:"destinationAsset"`
	DestinationAmount string      `json:"destinationAmount"`
	Fees              []wireFee   `json:"fees"`
	Trades            []wireTrade `json:"trades"`
}

// wireFee.Type is one of feeExchange, feeAggregator, feePartner. Percentage
// is in percent.
type wireFee struct {
	Type       string          `json:"type"`
	Asset      wireAsset       `json:"asset"`
	Amount     string          `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

const (
	feeExchange   = "exchange"
	feeAggregator = "aggregator"
	feePartner    = "partner"
)

type wireTrade struct {
	SourceAsset       wireAsset   `json:"sourceAsset"`
	SourceAmount      string      `json:"sourceAmount"`
	DestinationAsset  wireAsset   `json:"destinationAsset"`
	DestinationAmount string      `json:"destinationAmount"`
	Orders            []wireOrder `json:"orders"`
}

type wireOrder struct {
	Exchange          string `json:"exchange"`
	SourceAmount      string `json:"sourceAmount"`
	DestinationAmount string `json:"destinationAmount"`
}

// wireExchange is one entry of GET /exchanges.
type wireExchange struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
