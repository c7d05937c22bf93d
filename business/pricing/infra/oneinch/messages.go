package oneinch

type quoteToken struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// quoteResponse is GET /quote. Amounts are integer strings.
type quoteResponse struct {
	FromToken       quoteToken `json:"fromToken"`
	ToToken         quoteToken `json:"toToken"`
	FromTokenAmount string     `json:"fromTokenAmount"`
	ToTokenAmount   string     `json:"toTokenAmount"`
	// Protocols is [path][hop][part]. Parallel paths may repeat a hop.
	Protocols    [][][]protocolPart `json:"protocols"`
	EstimatedGas int64              `json:"estimatedGas"`
}

// protocolPart.Part is the percent of the hop routed through Name.
type protocolPart struct {
	Name             string  `json:"name"`
	Part             float64 `json:"part"`
	FromTokenAddress string  `json:"fromTokenAddress"`
	ToTokenAddress   string  `json:"toTokenAddress"`
}

type errorResponse struct {
	StatusCode  int    `json:"statusCode"`
	Error       string `json:"error"`
	Description string `json:"description"`
}
