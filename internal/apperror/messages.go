package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput: "Invalid input provided",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeUnknownToken: "Token is not in the registry",

	CodeQuoteUnavailable:           "Venue returned no quote",
	CodeMalformedQuote:             "Quote failed integrity checks",
	CodeVenueInternalError:         "Venue returned an unexpected response",
	CodeAmountDirectionUnsupported: "Venue does not accept this amount direction",

	CodeExchangeAliasConflict: "Exchange alias already mapped to a different name",

	CodeInvalidOrderbook:      "Invalid orderbook data",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	CodeSinkWriteFailed: "Failed to write output record",

	CodeCircuitOpen: "Circuit breaker is open",
}
