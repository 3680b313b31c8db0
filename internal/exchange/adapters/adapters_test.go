package adapters

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange/bybit"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

type staticMarket struct {
	ticker *types.Ticker
	err    error
}

func (m *staticMarket) FetchTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	if m.err != nil {
		return nil, m.err
	}
	t := *m.ticker
	t.Symbol = symbol
	return &t, nil
}

func (m *staticMarket) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	return nil, nil
}

func TestPaperVenueFillsAtBookSide(t *testing.T) {
	market := &staticMarket{ticker: &types.Ticker{Price: 100, Bid: 99.5, Ask: 100.5}}
	venue := NewPaperVenue(market, 0.001)

	buy, err := venue.PlaceOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, BaseAmount: 2})
	require.NoError(t, err)
	assert.Equal(t, exchange.OrderStatusFilled, buy.Status)
	assert.Equal(t, 100.5, buy.Price)
	assert.InDelta(t, 201.0, buy.Cost, 1e-9)
	assert.InDelta(t, 0.201, buy.Fee, 1e-9)
	assert.NotEmpty(t, buy.ClientOrderID)
	assert.True(t, buy.HasCost())

	sell, err := venue.PlaceOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideSell, BaseAmount: 2, ClientOrderID: "mine"})
	require.NoError(t, err)
	assert.Equal(t, 99.5, sell.Price)
	assert.Equal(t, "mine", sell.ClientOrderID)
	assert.NotEqual(t, buy.ID, sell.ID)

	assert.Len(t, venue.Orders(), 2)
}

func TestPaperVenueRejectsBadRequests(t *testing.T) {
	venue := NewPaperVenue(&staticMarket{ticker: &types.Ticker{Price: 100}}, 0)

	_, err := venue.PlaceOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy})
	assert.ErrorIs(t, err, exchange.ErrInvalidOrder)

	_, err = venue.PlaceOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: "hold", BaseAmount: 1})
	assert.ErrorIs(t, err, exchange.ErrInvalidOrder)

	noPrice := NewPaperVenue(&staticMarket{ticker: &types.Ticker{}}, 0)
	_, err = noPrice.PlaceOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, BaseAmount: 1})
	require.Error(t, err)
	assert.Equal(t, boterrors.FailureVenue, boterrors.Classify(err))
}

func TestPaperVenuePropagatesMarketErrors(t *testing.T) {
	down := errors.New("feed down")
	venue := NewPaperVenue(&staticMarket{err: down}, 0)
	_, err := venue.PlaceOrder(context.Background(), exchange.OrderRequest{Symbol: "BTCUSDT", Side: types.SideBuy, BaseAmount: 1})
	assert.ErrorIs(t, err, down)

	status, err := venue.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.VenueOnline, status)
}

func TestFactory(t *testing.T) {
	f := NewFactory()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
		want    string
	}{
		{"paper", Config{Name: " Paper ", PaperFeeRate: 0.001}, false, "paper"},
		{"bybit with keys", Config{Name: "bybit", Bybit: bybit.Config{APIKey: "k", APISecret: "s", Testnet: true}}, false, "bybit-testnet"},
		{"bybit without keys", Config{Name: "bybit"}, true, ""},
		{"missing name", Config{}, true, ""},
		{"unknown", Config{Name: "kraken"}, true, ""},
		{"bad fee", Config{Name: "paper", PaperFeeRate: 1.5}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := f.CreateExchange(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, ex)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ex.Name())
		})
	}
	assert.Equal(t, []string{"bybit", "paper"}, f.GetSupportedExchanges())
}

func TestConvertError(t *testing.T) {
	apiErr := &bybit.APIError{Code: bybit.ErrCodeInsufficientBalance, Message: "insufficient"}
	assert.Same(t, apiErr, convertError("place_order", apiErr))
	assert.Equal(t, boterrors.FailureVenue, boterrors.Classify(convertError("place_order", apiErr)))

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	converted := convertError("place_order", opErr)
	assert.Equal(t, boterrors.FailureNetwork, boterrors.Classify(converted))
	assert.ErrorIs(t, converted, opErr)

	assert.Equal(t, exchange.OrderStatusRejected, convertStatus(bybit.OrderStatusCancelled))
	assert.Equal(t, exchange.OrderStatusFilled, convertStatus(bybit.OrderStatusFilled))
}
