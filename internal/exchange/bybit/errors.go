package bybit

import (
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
)

// APIError is a non-zero retCode returned by Bybit
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
}

func (e *APIError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("Bybit API error %d during %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("Bybit API error %d: %s", e.Code, e.Message)
}

// Common Bybit error codes
const (
	ErrCodeInvalidAPIKey       = 10003
	ErrCodeInvalidSignature    = 10004
	ErrCodeInvalidTimestamp    = 10005
	ErrCodeRateLimitExceeded   = 10006
	ErrCodeServiceRestarting   = 10016
	ErrCodeOrderNotFound       = 110001
	ErrCodeInsufficientBalance = 110007
	ErrCodeInvalidQuantity     = 110020
	ErrCodeMarketClosed        = 110043
	ErrCodeSpotInsufficient    = 170131
)

// ErrorCategory classifies the code for internal/errors
func (e *APIError) ErrorCategory() boterrors.ErrorCategory {
	switch e.Code {
	case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature:
		return boterrors.ErrorCategoryCredentials
	case ErrCodeRateLimitExceeded:
		return boterrors.ErrorCategoryRateLimit
	case ErrCodeInsufficientBalance, ErrCodeSpotInsufficient, ErrCodeInvalidQuantity:
		return boterrors.ErrorCategoryOrder
	default:
		return boterrors.ErrorCategoryExchange
	}
}

// IsMaintenance reports codes that mean the venue is temporarily down
func (e *APIError) IsMaintenance() bool {
	return e.Code == ErrCodeServiceRestarting || e.Code == ErrCodeMarketClosed
}

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	switch apiErr.Code {
	case ErrCodeRateLimitExceeded, ErrCodeServiceRestarting, ErrCodeInvalidTimestamp:
		return true
	}
	return false
}

// decodeResult checks the envelope and unmarshals its result into out
func decodeResult(op string, response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("%s: invalid response type %T", op, response)
	}

	if serverResp.RetCode != 0 {
		return &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg, Op: op}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal result: %w", op, err)
	}
	if err := json.Unmarshal(resultBytes, out); err != nil {
		return fmt.Errorf("%s: failed to unmarshal result: %w", op, err)
	}
	return nil
}
