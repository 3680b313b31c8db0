package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEvaluator(t *testing.T) (*RiskEvaluator, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	r, err := NewRiskEvaluator(DefaultConfig(), nil, WithClock(clock.Now))
	require.NoError(t, err)
	return r, clock
}

func buySignal(conf, price float64) types.Signal {
	return types.Signal{Action: types.ActionBuy, Symbol: "BTCUSDT", Price: price, Confidence: conf}
}

func TestValidateTradeConfidenceBoundary(t *testing.T) {
	r, _ := newTestEvaluator(t)

	tests := []struct {
		name       string
		confidence float64
		approved   bool
	}{
		{"just below threshold", 0.59, false},
		{"at threshold", 0.60, true},
		{"high", 0.95, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.ValidateTrade(buySignal(tt.confidence, 100), 1000)
			assert.Equal(t, tt.approved, d.Approved, d.Reason)
			if !tt.approved {
				assert.Contains(t, d.Reason, "confidence")
			}
		})
	}
}

func TestValidateTradeRejectsNonPositivePrice(t *testing.T) {
	r, _ := newTestEvaluator(t)

	for _, price := range []float64{0, -1} {
		d := r.ValidateTrade(buySignal(0.9, price), 1000)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "invalid price")
	}
}

func TestValidateTradeRuleOrder(t *testing.T) {
	t.Run("open position before confidence", func(t *testing.T) {
		r, _ := newTestEvaluator(t)
		r.config.MinTimeBetweenTrades = 0
		r.OpenPosition("BTCUSDT", types.SideBuy, 100, 0.1, 10, 98, 104)

		d := r.ValidateTrade(buySignal(0.1, 0), 1000)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "open position limit")
		assert.Equal(t, 1, d.Details.OpenPositions)
	})

	t.Run("cooldown reports remaining seconds", func(t *testing.T) {
		r, clock := newTestEvaluator(t)
		r.OpenPosition("BTCUSDT", types.SideBuy, 100, 0.1, 10, 98, 104)
		_, err := r.ClosePosition(101, ExitManual)
		require.NoError(t, err)

		clock.Advance(3 * time.Minute)
		d := r.ValidateTrade(buySignal(0.9, 100), 1000)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "wait 120s")

		clock.Advance(2 * time.Minute)
		assert.True(t, r.ValidateTrade(buySignal(0.9, 100), 1000).Approved)
	})

	t.Run("trade cap before cooldown", func(t *testing.T) {
		r, _ := newTestEvaluator(t)
		for i := 0; i < 5; i++ {
			r.OpenPosition("BTCUSDT", types.SideBuy, 100, 0.1, 10, 98, 104)
			_, err := r.ClosePosition(100, ExitManual)
			require.NoError(t, err)
		}

		d := r.ValidateTrade(buySignal(0.9, 100), 1000)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "daily trade limit reached: 5/5")
	})

	t.Run("daily loss wins over everything", func(t *testing.T) {
		r, _ := newTestEvaluator(t)
		r.OpenPosition("BTCUSDT", types.SideBuy, 100, 1, 100, 98, 104)
		_, err := r.ClosePosition(50, ExitStopLoss)
		require.NoError(t, err)

		d := r.ValidateTrade(buySignal(0.1, 0), 1000)
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "daily loss limit")
		assert.Equal(t, -50.0, d.Details.DailyPnL)
	})
}

func TestDailyCountersResetOncePerDay(t *testing.T) {
	r, clock := newTestEvaluator(t)
	r.config.MinTimeBetweenTrades = 0

	r.OpenPosition("BTCUSDT", types.SideBuy, 100, 1, 100, 98, 104)
	_, err := r.ClosePosition(90, ExitStopLoss)
	require.NoError(t, err)

	clock.Advance(10 * time.Hour)
	r.ResetDailyCountersIfNewDay()
	s := r.Status()
	assert.Equal(t, -10.0, s.DailyPnL, "same day must not reset")
	assert.Equal(t, 1, s.DailyTrades)

	clock.Advance(6 * time.Hour) // 2025-03-11 01:00
	r.ResetDailyCountersIfNewDay()
	s = r.Status()
	assert.Equal(t, 0.0, s.DailyPnL)
	assert.Equal(t, 0, s.DailyTrades)
	assert.Equal(t, 1, s.TotalTrades)
	assert.Equal(t, "2025-03-11", s.DailyWindowStart)

	r.OpenPosition("BTCUSDT", types.SideBuy, 100, 1, 100, 98, 104)
	_, err = r.ClosePosition(95, ExitStopLoss)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	r.ResetDailyCountersIfNewDay()
	s = r.Status()
	assert.Equal(t, -5.0, s.DailyPnL, "second call on the new day must not reset again")
	assert.Equal(t, 1, s.DailyTrades)
}

func TestDailyWindowUsesConfiguredTimeZone(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.TimeZone = "Asia/Tokyo"
	r, err := NewRiskEvaluator(cfg, nil, WithClock(clock.Now))
	require.NoError(t, err)

	assert.Equal(t, "2025-03-11", r.Status().DailyWindowStart)

	_, err = NewRiskEvaluator(Config{TimeZone: "Mars/Olympus"}, nil)
	assert.Error(t, err)
}

func TestCalculatePositionSize(t *testing.T) {
	tests := []struct {
		name       string
		dailyLoss  float64
		confidence float64
		want       float64
	}{
		{"full conviction", 0, 0.80, 30},
		{"above full conviction is capped", 0, 0.95, 30},
		{"mid conviction", 0, 0.70, 15},
		{"threshold hits floor", 0, 0.60, 5},
		{"losing day reduces", 100, 0.80, 27},
		{"reduction never below half", 600, 0.80, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestEvaluator(t)
			if tt.dailyLoss > 0 {
				r.OpenPosition("BTCUSDT", types.SideBuy, 100, tt.dailyLoss/10, 0, 0, 0)
				_, err := r.ClosePosition(90, ExitStopLoss)
				require.NoError(t, err)
				require.InDelta(t, -tt.dailyLoss, r.Status().DailyPnL, 1e-9)
			}

			got := r.CalculatePositionSize(1000, buySignal(tt.confidence, 100))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	r, _ := newTestEvaluator(t)
	assert.Equal(t, 0.0, r.CalculatePositionSize(0, buySignal(0.9, 100)))
}

func TestStopLossAndTakeProfit(t *testing.T) {
	r, _ := newTestEvaluator(t)

	assert.Equal(t, 98.0, r.CalculateStopLoss(100, types.SideBuy))
	assert.Equal(t, 104.0, r.CalculateTakeProfit(100, types.SideBuy, 2.0))
	assert.Equal(t, 102.0, r.CalculateStopLoss(100, types.SideSell))
	assert.Equal(t, 96.0, r.CalculateTakeProfit(100, types.SideSell, 0))
}

func TestClosePositionFIFOAndPnL(t *testing.T) {
	r, _ := newTestEvaluator(t)

	_, err := r.ClosePosition(100, ExitManual)
	assert.Error(t, err)

	first := r.OpenPosition("BTCUSDT", types.SideBuy, 100, 2, 200, 98, 104)
	second := r.OpenPosition("BTCUSDT", types.SideSell, 100, 1, 100, 102, 96)
	assert.Less(t, first.ID, second.ID, "ids sort in creation order")

	closed, err := r.ClosePosition(110, ExitTakeProfit)
	require.NoError(t, err)
	assert.Equal(t, first.ID, closed.ID)
	assert.InDelta(t, 20.0, closed.RealizedPnL, 1e-9)
	assert.InDelta(t, 10.0, closed.ReturnPct, 1e-9)
	assert.Equal(t, ExitTakeProfit, closed.ExitType)

	closed, err = r.ClosePositionByID(second.ID, 90, ExitManual)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, closed.RealizedPnL, 1e-9)

	assert.InDelta(t, 30.0, r.Status().DailyPnL, 1e-9)
	assert.False(t, r.HasOpenPosition())

	_, err = r.ClosePositionByID("missing", 1, ExitManual)
	assert.Error(t, err)
}

func TestStopAndTargetPredicates(t *testing.T) {
	tests := []struct {
		name      string
		side      types.Side
		price     float64
		stopHit   bool
		targetHit bool
	}{
		{"long stop", types.SideBuy, 98, true, false},
		{"long neutral", types.SideBuy, 100, false, false},
		{"long target", types.SideBuy, 104.5, false, true},
		{"short stop", types.SideSell, 102, true, false},
		{"short target", types.SideSell, 96, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestEvaluator(t)
			assert.False(t, r.CheckStopLoss(tt.price))

			sl := r.CalculateStopLoss(100, tt.side)
			tp := r.CalculateTakeProfit(100, tt.side, 2.0)
			r.OpenPosition("BTCUSDT", tt.side, 100, 1, 100, sl, tp)

			assert.Equal(t, tt.stopHit, r.CheckStopLoss(tt.price))
			assert.Equal(t, tt.targetHit, r.CheckTakeProfit(tt.price))
		})
	}
}

func TestMarkToMarket(t *testing.T) {
	r, _ := newTestEvaluator(t)
	r.OpenPosition("BTCUSDT", types.SideBuy, 100, 2, 200, 98, 104)

	r.MarkToMarket(103)
	positions := r.OpenPositions()
	require.Len(t, positions, 1)
	assert.InDelta(t, 6.0, positions[0].PnL, 1e-9)
}
