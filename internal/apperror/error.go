// Package apperror defines the coded errors every layer returns. The code is
// what callers branch on; message, venue and context are for people.
package apperror

import (
	"errors"
	"log/slog"
	"strings"
)

// AppError is a coded error, optionally tagged with the venue that raised it.
type AppError struct {
	Code    Code
	Message string
	Venue   string
	Context string
	cause   error
}

func (e *AppError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Venue != "" {
		sb.WriteString(" [venue: ")
		sb.WriteString(e.Venue)
		sb.WriteString("]")
	}
	if e.Context != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Context)
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches another *AppError by code, so errors.Is(err, apperror.New(code)) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// LogValue renders the error as a group so log lines carry the code and
// venue as separate keys.
func (e *AppError) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("code", string(e.Code)), slog.String("msg", e.Message)}
	if e.Venue != "" {
		attrs = append(attrs, slog.String("venue", e.Venue))
	}
	if e.Context != "" {
		attrs = append(attrs, slog.String("context", e.Context))
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	return slog.GroupValue(attrs...)
}

// New creates an AppError. The message defaults to the code's entry in the
// message table.
func New(code Code, opts ...Option) *AppError {
	err := &AppError{Code: code, Message: messages[code]}
	for _, opt := range opts {
		opt(err)
	}
	if err.Message == "" {
		err.Message = string(code)
	}
	return err
}

type Option func(*AppError)

func WithMessage(message string) Option {
	return func(e *AppError) {
		e.Message = message
	}
}

func WithContext(context string) Option {
	return func(e *AppError) {
		e.Context = context
	}
}

// WithVenue tags the error with the venue that produced it.
func WithVenue(venue string) Option {
	return func(e *AppError) {
		e.Venue = venue
	}
}

func WithCause(cause error) Option {
	return func(e *AppError) {
		e.cause = cause
	}
}

// Configuration creates a startup configuration error.
func Configuration(context string) *AppError {
	return New(CodeConfigurationError, WithContext(context))
}

// UnknownToken creates an error for a registry miss.
func UnknownToken(symbol string) *AppError {
	return New(CodeUnknownToken, WithContext(symbol))
}

// Unavailable creates a QuoteUnavailable error for a venue.
func Unavailable(venue, context string, cause error) *AppError {
	return New(CodeQuoteUnavailable, WithVenue(venue), WithContext(context), WithCause(cause))
}

// Malformed creates a MalformedQuote error for a venue.
func Malformed(venue, context string) *AppError {
	return New(CodeMalformedQuote, WithVenue(venue), WithContext(context))
}

// VenueInternal creates a VenueInternalError for a venue.
func VenueInternal(venue, context string, cause error) *AppError {
	return New(CodeVenueInternalError, WithVenue(venue), WithContext(context), WithCause(cause))
}

// DirectionUnsupported creates an AmountDirectionUnsupported error.
func DirectionUnsupported(venue, context string) *AppError {
	return New(CodeAmountDirectionUnsupported, WithVenue(venue), WithContext(context))
}

// Wrap returns err unchanged when it already carries a code, filling in
// context if it had none. Any other error becomes an AppError with code.
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if context != "" && appErr.Context == "" {
			appErr.Context = context
		}
		return appErr
	}
	return New(code, WithContext(context), WithCause(err))
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode extracts the code, or CodeUnknownError for uncoded errors.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// HasCode reports whether err carries one of the given codes.
func HasCode(err error, codes ...Code) bool {
	if err == nil {
		return false
	}
	got := GetCode(err)
	for _, c := range codes {
		if got == c {
			return true
		}
	}
	return false
}
