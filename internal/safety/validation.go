package safety

import (
	"fmt"
	"math"
	"strings"

	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// recentCandleWindow is how many of the newest candles get a shape check
const recentCandleWindow = 10

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

func invalid(code, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...), Code: code}
}

// Validator provides defensive validation methods
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePrice validates a price value for trading
func (v *Validator) ValidatePrice(price float64, symbol string) ValidationResult {
	if math.IsNaN(price) {
		return invalid("INVALID_PRICE_NAN", "invalid price for %s: price is NaN", symbol)
	}
	if math.IsInf(price, 0) {
		return invalid("INVALID_PRICE_INF", "invalid price for %s: price is infinite", symbol)
	}
	if price <= 0 {
		return invalid("INVALID_PRICE_NEGATIVE", "invalid price %.8f for %s: price must be positive", price, symbol)
	}
	if price > 1e10 {
		return invalid("PRICE_OUT_OF_BOUNDS", "suspicious price %.8f for %s: exceeds reasonable bounds", price, symbol)
	}
	return ValidationResult{Valid: true}
}

// ValidateQuantity validates a base quantity for an order
func (v *Validator) ValidateQuantity(quantity float64, symbol string) ValidationResult {
	if math.IsNaN(quantity) {
		return invalid("INVALID_QUANTITY_NAN", "invalid quantity for %s: quantity is NaN", symbol)
	}
	if math.IsInf(quantity, 0) {
		return invalid("INVALID_QUANTITY_INF", "invalid quantity for %s: quantity is infinite", symbol)
	}
	if quantity <= 0 {
		return invalid("INVALID_QUANTITY_NEGATIVE", "invalid quantity %.8f for %s: quantity must be positive", quantity, symbol)
	}
	return ValidationResult{Valid: true}
}

// ValidateOrderValue validates price, quantity and their product
func (v *Validator) ValidateOrderValue(price, quantity float64, symbol string) ValidationResult {
	if r := v.ValidatePrice(price, symbol); !r.Valid {
		return r
	}
	if r := v.ValidateQuantity(quantity, symbol); !r.Valid {
		return r
	}

	orderValue := price * quantity
	if math.IsInf(orderValue, 0) || math.IsNaN(orderValue) {
		return invalid("INVALID_ORDER_VALUE", "invalid order value for %s: %.8f x %.8f", symbol, price, quantity)
	}
	if orderValue < 0.01 {
		return invalid("ORDER_VALUE_TOO_SMALL", "order value $%.8f for %s: below minimum reasonable value", orderValue, symbol)
	}
	return ValidationResult{Valid: true}
}

// ValidateSymbol validates a trading symbol format
func (v *Validator) ValidateSymbol(symbol string) ValidationResult {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return invalid("SYMBOL_EMPTY", "symbol cannot be empty")
	}
	if len(symbol) < 3 || len(symbol) > 20 {
		return invalid("SYMBOL_LENGTH", "symbol '%s' must be 3-20 characters", symbol)
	}
	for _, char := range symbol {
		if !((char >= 'A' && char <= 'Z') || (char >= 'a' && char <= 'z') || (char >= '0' && char <= '9')) {
			return invalid("SYMBOL_INVALID_CHARS", "symbol '%s' contains invalid characters: only alphanumeric allowed", symbol)
		}
	}
	return ValidationResult{Valid: true}
}

// ValidateTicker checks that every quoted price is positive, volume is not
// negative, and the last price sits inside the spread.
func (v *Validator) ValidateTicker(ticker *types.Ticker) ValidationResult {
	if ticker == nil {
		return invalid("TICKER_EMPTY", "empty ticker")
	}

	fields := []struct {
		name  string
		value float64
	}{
		{"last", ticker.Price},
		{"bid", ticker.Bid},
		{"ask", ticker.Ask},
		{"high", ticker.High24h},
		{"low", ticker.Low24h},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || f.value <= 0 {
			return invalid("TICKER_FIELD_INVALID", "ticker field '%s' invalid: %v", f.name, f.value)
		}
	}
	if math.IsNaN(ticker.Volume) || ticker.Volume < 0 {
		return invalid("TICKER_FIELD_INVALID", "ticker field 'volume' invalid: %v", ticker.Volume)
	}

	if !(ticker.Bid <= ticker.Price && ticker.Price <= ticker.Ask) {
		return invalid("TICKER_CROSSED", "illogical prices: bid=%v last=%v ask=%v", ticker.Bid, ticker.Price, ticker.Ask)
	}
	return ValidationResult{Valid: true, Message: "ticker valid"}
}

// ValidateCandles requires at least minCount candles and checks the OHLC
// bounds of the newest ones.
func (v *Validator) ValidateCandles(candles []types.OHLCV, minCount int) ValidationResult {
	if len(candles) == 0 {
		return invalid("CANDLES_EMPTY", "no candles")
	}
	if len(candles) < minCount {
		return invalid("CANDLES_INSUFFICIENT", "too few candles: %d < %d", len(candles), minCount)
	}

	start := len(candles) - recentCandleWindow
	if start < 0 {
		start = 0
	}
	for i, c := range candles[start:] {
		if c.High <= 0 || c.Low <= 0 {
			return invalid("CANDLE_PRICE_INVALID", "candle %d has non-positive prices", i)
		}
		if !(c.Low <= c.Open && c.Open <= c.High && c.Low <= c.Close && c.Close <= c.High) {
			return invalid("CANDLE_OHLC_INVALID", "candle %d has illogical OHLC: O=%v H=%v L=%v C=%v", i, c.Open, c.High, c.Low, c.Close)
		}
		if c.Volume < 0 {
			return invalid("CANDLE_VOLUME_NEGATIVE", "candle %d has negative volume", i)
		}
	}
	return ValidationResult{Valid: true, Message: "candles valid"}
}
