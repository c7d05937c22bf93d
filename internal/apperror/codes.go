package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput Code = "INVALID_INPUT"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Comparison engine error kinds
const (
	// Token registry
	CodeUnknownToken Code = "UNKNOWN_TOKEN"

	// Venue quoting
	CodeQuoteUnavailable           Code = "QUOTE_UNAVAILABLE"
	CodeMalformedQuote             Code = "MALFORMED_QUOTE"
	CodeVenueInternalError         Code = "VENUE_INTERNAL_ERROR"
	CodeAmountDirectionUnsupported Code = "AMOUNT_DIRECTION_UNSUPPORTED"

	// Name map
	CodeExchangeAliasConflict Code = "EXCHANGE_ALIAS_CONFLICT"

	// Order books
	CodeInvalidOrderbook      Code = "INVALID_ORDERBOOK"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"

	// Blockchain
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// Output
	CodeSinkWriteFailed Code = "SINK_WRITE_FAILED"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
