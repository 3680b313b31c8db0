package bybit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentInfo carries the lot size rules for one symbol. Spot instruments
// express the step as basePrecision, derivatives as qtyStep.
type InstrumentInfo struct {
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	BaseCoin      string `json:"baseCoin"`
	QuoteCoin     string `json:"quoteCoin"`
	LotSizeFilter struct {
		BasePrecision    string `json:"basePrecision"`
		QtyStep          string `json:"qtyStep"`
		MinOrderQty      string `json:"minOrderQty"`
		MaxOrderQty      string `json:"maxOrderQty"`
		MinOrderAmt      string `json:"minOrderAmt"`
		MinNotionalValue string `json:"minNotionalValue"`
	} `json:"lotSizeFilter"`
}

// Step returns the quantity increment
func (ii *InstrumentInfo) Step() decimal.Decimal {
	for _, s := range []string{ii.LotSizeFilter.QtyStep, ii.LotSizeFilter.BasePrecision} {
		if d, err := decimal.NewFromString(s); err == nil && d.IsPositive() {
			return d
		}
	}
	return decimal.Zero
}

// MinQty returns the smallest accepted quantity
func (ii *InstrumentInfo) MinQty() decimal.Decimal {
	d, err := decimal.NewFromString(ii.LotSizeFilter.MinOrderQty)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// MaxQty returns the largest accepted quantity, zero when unbounded
func (ii *InstrumentInfo) MaxQty() decimal.Decimal {
	d, err := decimal.NewFromString(ii.LotSizeFilter.MaxOrderQty)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// InstrumentManager caches instrument rules and formats order quantities
type InstrumentManager struct {
	client         *Client
	instruments    map[string]*InstrumentInfo
	fetchedAt      map[string]time.Time
	updateInterval time.Duration
	mutex          sync.RWMutex
}

// NewInstrumentManager creates a new instrument manager
func NewInstrumentManager(client *Client) *InstrumentManager {
	return &InstrumentManager{
		client:         client,
		instruments:    make(map[string]*InstrumentInfo),
		fetchedAt:      make(map[string]time.Time),
		updateInterval: time.Hour,
	}
}

// GetInstrumentInfo retrieves and caches instrument information
func (im *InstrumentManager) GetInstrumentInfo(ctx context.Context, symbol string) (*InstrumentInfo, error) {
	im.mutex.RLock()
	if instrument, ok := im.instruments[symbol]; ok && time.Since(im.fetchedAt[symbol]) < im.updateInterval {
		im.mutex.RUnlock()
		return instrument, nil
	}
	im.mutex.RUnlock()

	if err := im.client.throttle(ctx); err != nil {
		return nil, err
	}
	params := map[string]interface{}{
		"category": im.client.config.Category,
		"symbol":   symbol,
	}
	result, err := im.client.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instrument info: %w", err)
	}

	var parsed struct {
		Category string           `json:"category"`
		List     []InstrumentInfo `json:"list"`
	}
	if err := decodeResult("get_instrument_info", result, &parsed); err != nil {
		return nil, err
	}

	var instrument *InstrumentInfo
	for i := range parsed.List {
		if parsed.List[i].Symbol == symbol {
			instrument = &parsed.List[i]
			break
		}
	}
	if instrument == nil {
		return nil, &APIError{Code: -1, Message: "instrument not found: " + symbol, Op: "get_instrument_info"}
	}

	im.mutex.Lock()
	im.instruments[symbol] = instrument
	im.fetchedAt[symbol] = time.Now()
	im.mutex.Unlock()

	return instrument, nil
}

// FormatQuantity rounds qty down to the instrument step and checks the lot
// bounds. Rounding down keeps the order inside the reserved notional.
func FormatQuantity(info *InstrumentInfo, qty float64) (string, error) {
	amount := decimal.NewFromFloat(qty)
	if step := info.Step(); step.IsPositive() {
		amount = amount.Div(step).Floor().Mul(step)
	}

	if minQty := info.MinQty(); amount.LessThan(minQty) || !amount.IsPositive() {
		return "", fmt.Errorf("quantity %s is below minimum %s for %s", amount.String(), minQty.String(), info.Symbol)
	}
	if maxQty := info.MaxQty(); maxQty.IsPositive() && amount.GreaterThan(maxQty) {
		amount = maxQty
	}
	return amount.String(), nil
}
