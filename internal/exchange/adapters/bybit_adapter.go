package adapters

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange/bybit"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// BybitAdapter implements exchange.Exchange for Bybit
type BybitAdapter struct {
	client      *bybit.Client
	probeSymbol string
	retry       bybit.RetryConfig
}

// NewBybitAdapter creates a new Bybit adapter. probeSymbol is the ticker the
// status probe reads.
func NewBybitAdapter(config bybit.Config, probeSymbol string) (*BybitAdapter, error) {
	if config.APIKey == "" || config.APISecret == "" {
		return nil, exchange.ErrMissingCredentials
	}
	return newBybitAdapter(config, probeSymbol), nil
}

// NewBybitMarketData creates an adapter for public market data only. Order
// placement through it fails at the venue for lack of credentials.
func NewBybitMarketData(config bybit.Config, probeSymbol string) *BybitAdapter {
	return newBybitAdapter(config, probeSymbol)
}

func newBybitAdapter(config bybit.Config, probeSymbol string) *BybitAdapter {
	if probeSymbol == "" {
		probeSymbol = "BTCUSDT"
	}
	return &BybitAdapter{
		client:      bybit.NewClient(config),
		probeSymbol: probeSymbol,
		retry:       bybit.DefaultRetryConfig(),
	}
}

// Name returns the exchange name
func (b *BybitAdapter) Name() string {
	return "bybit-" + b.client.GetEnvironment()
}

// FetchTicker retrieves the latest quote for symbol
func (b *BybitAdapter) FetchTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	var ticker *types.Ticker
	err := bybit.Retry(ctx, b.retry, func() error {
		var err error
		ticker, err = b.client.GetTicker(ctx, symbol)
		return err
	})
	if err != nil {
		return nil, convertError("fetch_ticker", err)
	}
	return ticker, nil
}

// FetchCandles retrieves candles oldest first
func (b *BybitAdapter) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	klineInterval, err := bybit.ParseInterval(interval)
	if err != nil {
		return nil, &exchange.ExchangeError{Kind: exchange.KindConfig, Code: "INVALID_INTERVAL", Message: err.Error()}
	}

	var candles []types.OHLCV
	err = bybit.Retry(ctx, b.retry, func() error {
		var err error
		candles, err = b.client.GetKlines(ctx, symbol, klineInterval, limit)
		return err
	})
	if err != nil {
		return nil, convertError("fetch_candles", err)
	}
	return candles, nil
}

// PlaceOrder submits a market order. Placement is never retried; a second
// attempt after an ambiguous failure could double the position.
func (b *BybitAdapter) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	side := bybit.OrderSideBuy
	switch req.Side {
	case types.SideBuy:
	case types.SideSell:
		side = bybit.OrderSideSell
	default:
		return nil, exchange.ErrInvalidOrder
	}

	placed, err := b.client.PlaceMarketOrder(ctx, req.Symbol, side, req.BaseAmount, req.ClientOrderID)
	if err != nil {
		return nil, convertError("place_order", err)
	}

	order := &exchange.Order{
		ID:            placed.OrderID,
		ClientOrderID: placed.OrderLinkID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Status:        exchange.OrderStatusNew,
		Amount:        parseAmount(placed.Qty),
		Timestamp:     placed.CreatedTime,
	}

	// The placement response carries no fill data. Look the order up once;
	// without it the caller falls back to its own notional.
	if filled, err := b.client.GetOrder(ctx, req.Symbol, placed.OrderID); err == nil {
		order.Status = convertStatus(filled.OrderStatus)
		order.Filled = parseAmount(filled.CumExecQty)
		order.Cost = parseAmount(filled.CumExecValue)
		order.Price = parseAmount(filled.AvgPrice)
		order.Fee = parseAmount(filled.CumExecFee)
		if !filled.CreatedTime.IsZero() {
			order.Timestamp = filled.CreatedTime
		}
	}
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now()
	}
	return order, nil
}

// Status probes the venue by reading the probe symbol's ticker
func (b *BybitAdapter) Status(ctx context.Context) (types.VenueStatus, error) {
	_, err := b.client.GetTicker(ctx, b.probeSymbol)
	if err == nil {
		return types.VenueOnline, nil
	}
	var apiErr *bybit.APIError
	if errors.As(err, &apiErr) && apiErr.IsMaintenance() {
		return types.VenueMaintenance, nil
	}
	return types.VenueUnknown, convertError("status", err)
}

func convertStatus(status bybit.OrderStatus) exchange.OrderStatus {
	switch status {
	case bybit.OrderStatusNew:
		return exchange.OrderStatusNew
	case bybit.OrderStatusPartiallyFilled:
		return exchange.OrderStatusPartiallyFilled
	case bybit.OrderStatusFilled:
		return exchange.OrderStatusFilled
	case bybit.OrderStatusRejected, bybit.OrderStatusCancelled:
		return exchange.OrderStatusRejected
	default:
		return exchange.OrderStatusUnknown
	}
}

// convertError keeps Bybit API errors as they are (they classify themselves)
// and marks transport failures as network errors.
func convertError(op string, err error) error {
	var apiErr *bybit.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return exchange.NewNetworkError(op, err)
	}
	return err
}

func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
