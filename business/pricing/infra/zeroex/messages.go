package zeroex

import "github.com/shopspring/decimal"

// priceResponse is GET /swap/v1/price. Amounts are integer strings;
// proportions are fractions of one. Price is buy units per sell unit.
type priceResponse struct {
	Price            decimal.Decimal   `json:"price"`
	BuyAmount        string            `json:"buyAmount"`
	SellAmount       string            `json:"sellAmount"`
	BuyTokenAddress  string            `json:"buyTokenAddress"`
	SellTokenAddress string            `json:"sellTokenAddress"`
	Sources          []liquiditySource `json:"sources"`
	EstimatedGas     string            `json:"estimatedGas"`
}

type liquiditySource struct {
	Name       string          `json:"name"`
	Proportion decimal.Decimal `json:"proportion"`
}

type validationError struct {
	Field  string `json:"field"`
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type errorResponse struct {
	Code             int               `json:"code"`
	Reason           string            `json:"reason"`
	ValidationErrors []validationError `json:"validationErrors"`
}
