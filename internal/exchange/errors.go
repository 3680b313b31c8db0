package exchange

import (
	"fmt"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
)

// ErrorKind is the coarse source of an exchange failure
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindVenue   ErrorKind = "venue"
	KindAuth    ErrorKind = "auth"
	KindRate    ErrorKind = "rate_limit"
	KindConfig  ErrorKind = "config"
)

// ExchangeError represents standardized errors from exchanges
type ExchangeError struct {
	Kind        ErrorKind `json:"kind"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Details     string    `json:"details,omitempty"`
	IsRetryable bool      `json:"is_retryable"`
	Err         error     `json:"-"`
}

func (e *ExchangeError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// ErrorCategory lets internal/errors classify the failure without matching
// on message text.
func (e *ExchangeError) ErrorCategory() boterrors.ErrorCategory {
	switch e.Kind {
	case KindNetwork:
		return boterrors.ErrorCategoryNetwork
	case KindAuth:
		return boterrors.ErrorCategoryCredentials
	case KindRate:
		return boterrors.ErrorCategoryRateLimit
	case KindConfig:
		return boterrors.ErrorCategoryConfiguration
	default:
		return boterrors.ErrorCategoryExchange
	}
}

// NewNetworkError wraps a transport failure
func NewNetworkError(op string, err error) *ExchangeError {
	return &ExchangeError{Kind: KindNetwork, Code: "NETWORK", Message: op + " failed", Err: err, IsRetryable: true}
}

// NewVenueError reports a rejection by the venue
func NewVenueError(code, message string) *ExchangeError {
	return &ExchangeError{Kind: KindVenue, Code: code, Message: message}
}

// Common error types
var (
	ErrUnsupportedExchange = &ExchangeError{Kind: KindConfig, Code: "UNSUPPORTED_EXCHANGE", Message: "exchange is not supported"}
	ErrMissingCredentials  = &ExchangeError{Kind: KindConfig, Code: "MISSING_CREDENTIALS", Message: "api key and secret are required"}
	ErrInvalidOrder        = &ExchangeError{Kind: KindVenue, Code: "INVALID_ORDER", Message: "order request is invalid"}
)
