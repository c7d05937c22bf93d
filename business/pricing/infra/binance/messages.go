// Package binance is the order-book venue: a Binance spot market whose
// top-of-book depth is kept live over a websocket stream and fetched over
// REST when the stream is stale or absent.
package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/business/pricing/domain"
)

// WSRequest is a stream subscription request.
type WSRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

// WSResponse acknowledges a WSRequest.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// StreamEvent wraps every combined-stream message.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// PartialDepthEvent is a @depth<N> snapshot. Symbol is not in the payload
// and is taken from the stream name.
type PartialDepthEvent struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
	Symbol       string     `json:"-"`
}

// DepthResponse is GET /api/v3/depth. It has the same shape as a partial
// depth event.
type DepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// ExchangeInfo is the subset of GET /api/v3/exchangeInfo the adapter reads.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one market.
type SymbolInfo struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []SymbolFilter `json:"filters"`
}

// SymbolFilter is one exchange filter; only LOT_SIZE is used.
type SymbolFilter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
}

// MinQty returns the LOT_SIZE minimum quantity in base units, zero when the
// market has none.
func (s SymbolInfo) MinQty() decimal.Decimal {
	for _, f := range s.Filters {
		if f.FilterType != "LOT_SIZE" || f.MinQty == "" {
			continue
		}
		if q, err := decimal.NewFromString(f.MinQty); err == nil {
			return q
		}
	}
	return decimal.Zero
}

// Trading reports whether the market accepts orders.
func (s SymbolInfo) Trading() bool {
	return s.Status == "" || s.Status == "TRADING"
}

// APIError is the Binance error body.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error %d: %s", e.Code, e.Message)
}

// codeInvalidSymbol is returned for markets that do not exist.
const codeInvalidSymbol = -1121

// ParseLevels parses [[price, qty], ...]. Zero-quantity levels are dropped.
func ParseLevels(raw [][]string) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(raw))
	for i, r := range raw {
		if len(r) < 2 {
			return nil, fmt.Errorf("level %d: want [price, qty], got %d fields", i, len(r))
		}
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		qty, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, fmt.Errorf("level %d qty: %w", i, err)
		}
		if qty.IsZero() {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: price, Size: qty})
	}
	return levels, nil
}

// DepthStream returns the partial book depth stream for symbol, e.g.
// ethusdt@depth20@100ms.
func DepthStream(symbol string, levels, speedMs int) string {
	return strings.ToLower(symbol) + "@depth" + strconv.Itoa(levels) + "@" + strconv.Itoa(speedMs) + "ms"
}

// symbolFromStream extracts ETHUSDT from ethusdt@depth20@100ms.
func symbolFromStream(stream string) string {
	if idx := strings.Index(stream, "@"); idx > 0 {
		return strings.ToUpper(stream[:idx])
	}
	return strings.ToUpper(stream)
}
