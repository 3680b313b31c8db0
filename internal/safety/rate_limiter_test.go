package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterRefill(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter("telegram", 2, 1)
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	now = now.Add(500 * time.Millisecond)
	assert.False(t, rl.Allow())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.Allow())

	now = now.Add(time.Minute)
	assert.Equal(t, 2, rl.GetStats().Tokens, "tokens are capped at capacity")
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter("venue", 1, 50)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, rl.Wait(ctx))

	slow := NewRateLimiter("slow", 1, 0.01)
	require.True(t, slow.Allow())
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, slow.Wait(ctx2), context.DeadlineExceeded)
}

func TestValidatorOrderChecks(t *testing.T) {
	v := NewValidator()

	assert.True(t, v.ValidateOrderValue(100, 0.3, "BTCUSDT").Valid)
	assert.Equal(t, "INVALID_QUANTITY_NEGATIVE", v.ValidateOrderValue(100, 0, "BTCUSDT").Code)
	assert.Equal(t, "INVALID_PRICE_NEGATIVE", v.ValidateOrderValue(-1, 1, "BTCUSDT").Code)
	assert.Equal(t, "ORDER_VALUE_TOO_SMALL", v.ValidateOrderValue(1, 0.001, "BTCUSDT").Code)

	assert.True(t, v.ValidateSymbol("BTCUSDT").Valid)
	assert.Equal(t, "SYMBOL_INVALID_CHARS", v.ValidateSymbol("BTC/USDT").Code)
	assert.Equal(t, "SYMBOL_EMPTY", v.ValidateSymbol("  ").Code)
}
