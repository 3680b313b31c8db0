package bybit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
)

func TestFormatQuantity(t *testing.T) {
	spot := &InstrumentInfo{Symbol: "BTCUSDT"}
	spot.LotSizeFilter.BasePrecision = "0.000001"
	spot.LotSizeFilter.MinOrderQty = "0.000048"
	spot.LotSizeFilter.MaxOrderQty = "71.73956243"

	tests := []struct {
		name string
		qty  float64
		want string
		err  bool
	}{
		{"rounds down to step", 0.00035719, "0.000357", false},
		{"exact step", 0.0005, "0.0005", false},
		{"below minimum", 0.00001, "", true},
		{"capped at maximum", 100, "71.73956243", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatQuantity(spot, tt.qty)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	linear := &InstrumentInfo{Symbol: "ETHUSDT"}
	linear.LotSizeFilter.QtyStep = "0.01"
	linear.LotSizeFilter.MinOrderQty = "0.01"
	got, err := FormatQuantity(linear, 0.129)
	require.NoError(t, err)
	assert.Equal(t, "0.12", got)
}

func TestParseKlineListSortsAscending(t *testing.T) {
	rows := [][]string{
		{"1741600200000", "101", "103", "100", "102", "5", "510"},
		{"1741600100000", "100", "102", "99", "101", "4", "404"},
		{"short"},
	}
	candles := parseKlineList(rows)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 5.0, candles[1].Volume)
}

func TestParseInterval(t *testing.T) {
	for in, want := range map[string]KlineInterval{"5m": Interval5m, "1h": Interval1h, "D": Interval1d, "240": Interval4h} {
		got, err := ParseInterval(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseInterval("7m")
	assert.Error(t, err)
}

func TestAPIErrorClassification(t *testing.T) {
	assert.Equal(t, boterrors.FailureVenue, boterrors.Classify(&APIError{Code: ErrCodeMarketClosed}))
	assert.Equal(t, boterrors.ErrorCategoryCredentials, (&APIError{Code: ErrCodeInvalidAPIKey}).ErrorCategory())
	assert.Equal(t, boterrors.ErrorCategoryOrder, (&APIError{Code: ErrCodeSpotInsufficient}).ErrorCategory())
	assert.True(t, (&APIError{Code: ErrCodeServiceRestarting}).IsMaintenance())
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return &APIError{Code: ErrCodeRateLimitExceeded}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	permanent := errors.New("bad symbol")
	err = Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}
