package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fd1az/savings-bench/internal/apperror"
)

// maxErrorBody caps how much of a response body is copied into errors.
const maxErrorBody = 512

// StatusErrorHandler maps venue HTTP statuses to error kinds:
// 429 is rate limiting, 5xx is a venue internal error and any other 4xx
// means the venue refused to quote.
func StatusErrorHandler(venue string) ResponseErrorHandler {
	return func(statusCode int, body []byte) error {
		if statusCode < 400 {
			return nil
		}
		detail := fmt.Sprintf("status %d: %s", statusCode, truncate(body))

		switch {
		case statusCode == http.StatusTooManyRequests:
			return apperror.New(apperror.CodeRateLimitExceeded,
				apperror.WithVenue(venue), apperror.WithContext(detail))
		case statusCode >= 500:
			return apperror.VenueInternal(venue, detail, nil)
		default:
			return apperror.Unavailable(venue, detail, nil)
		}
	}
}

// TransportError wraps a failed round trip. Timeouts and other network
// faults are both retryable.
func TransportError(venue string, err error) error {
	if err == nil {
		return nil
	}
	code := apperror.CodeServiceUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = apperror.CodeServiceTimeout
	}
	return apperror.New(code, apperror.WithVenue(venue), apperror.WithCause(err))
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
