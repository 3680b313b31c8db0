package bot

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/monitoring"
	"github.com/ducminhle1904/crypto-trade-gate/internal/orchestrator"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// fakeExchange serves a fixed quote and fills every order at it
type fakeExchange struct {
	mu        sync.Mutex
	price     float64
	crossed   bool
	tickerErr error
	statusErr error
	orders    []exchange.OrderRequest
}

func (f *fakeExchange) setPrice(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = p
}

func (f *fakeExchange) FetchTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	t := &types.Ticker{
		Symbol:    symbol,
		Price:     f.price,
		Bid:       f.price - 0.1,
		Ask:       f.price + 0.1,
		High24h:   f.price * 1.05,
		Low24h:    f.price * 0.95,
		Volume:    10,
		Timestamp: time.Now(),
	}
	if f.crossed {
		t.Bid = f.price + 1
	}
	return t, nil
}

func (f *fakeExchange) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := time.Now().Add(-time.Duration(limit) * time.Minute)
	candles := make([]types.OHLCV, limit)
	for i := range candles {
		candles[i] = types.OHLCV{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      f.price,
			High:      f.price + 1,
			Low:       f.price - 1,
			Close:     f.price,
			Volume:    1,
		}
	}
	return candles, nil
}

func (f *fakeExchange) Status(ctx context.Context) (types.VenueStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return types.VenueUnknown, f.statusErr
	}
	return types.VenueOnline, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	return &exchange.Order{
		ID:            "fake-order",
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Status:        exchange.OrderStatusFilled,
		Amount:        req.BaseAmount,
		Filled:        req.BaseAmount,
		Price:         f.price,
		Cost:          f.price * req.BaseAmount,
		Timestamp:     time.Now(),
	}, nil
}

func (f *fakeExchange) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type gateFixture struct {
	bot     *GateBot
	market  *fakeExchange
	queue   *QueueSource
	ledger  *ledger.CapitalLedger
	risk    *risk.RiskEvaluator
	health  *safety.HealthMonitor
	breaker *safety.SafetyBreaker
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	f := &gateFixture{
		market:  &fakeExchange{price: 100},
		queue:   NewQueueSource("BTCUSDT", 4),
		ledger:  ledger.NewCapitalLedger(ledger.Config{InitialCapital: 1000, MaxPositionFraction: 0.03}, nil, nil),
		health:  safety.NewHealthMonitor(safety.DefaultHealthConfig(), nil),
		breaker: safety.NewSafetyBreaker(safety.DefaultBreakerConfig(), nil, nil),
	}
	var err error
	f.risk, err = risk.NewRiskEvaluator(risk.DefaultConfig(), nil)
	require.NoError(t, err)

	orders, err := orchestrator.NewOrderManager(orchestrator.DefaultConfig(), orchestrator.Components{
		Ledger:  f.ledger,
		Risk:    f.risk,
		Health:  f.health,
		Breaker: f.breaker,
		Venue:   f.market,
	}, nil)
	require.NoError(t, err)

	f.bot, err = NewGateBot(Config{
		Symbol:       "BTCUSDT",
		Interval:     "5m",
		CandleLimit:  60,
		MinCandles:   50,
		PollInterval: time.Millisecond,
	}, Components{
		Market:  f.market,
		Venue:   f.market,
		Orders:  orders,
		Ledger:  f.ledger,
		Risk:    f.risk,
		Health:  f.health,
		Breaker: f.breaker,
		Source:  f.queue,
		Metrics: monitoring.NewMetrics(),
	}, nil)
	require.NoError(t, err)
	return f
}

func buySignal() types.Signal {
	return types.Signal{Action: types.ActionBuy, Symbol: "BTCUSDT", Price: 100, Confidence: 0.8}
}

func TestNewGateBotRequiresComponents(t *testing.T) {
	_, err := NewGateBot(Config{Symbol: "BTCUSDT"}, Components{}, nil)
	assert.Error(t, err)
}

func TestTickExecutesQueuedSignal(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.queue.Enqueue(buySignal()))

	require.NoError(t, f.bot.Tick(context.Background()))

	assert.Equal(t, 1, f.market.orderCount())
	assert.Equal(t, 0, f.queue.Len())
	positions := f.risk.OpenPositions()
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.3, positions[0].Size, 1e-9)
	assert.InDelta(t, 970.0, f.ledger.Status().Total, 1e-9)
	assert.InDelta(t, 1000.0, f.breaker.Status().InitialCapital, 1e-9)
}

func TestTickIgnoresHoldAndEmptyQueue(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.bot.Tick(context.Background()))

	require.NoError(t, f.queue.Enqueue(types.Signal{Action: types.ActionHold, Symbol: "BTCUSDT", Price: 100, Confidence: 0.9}))
	require.NoError(t, f.bot.Tick(context.Background()))

	assert.Equal(t, 0, f.market.orderCount())
	assert.Equal(t, 0, f.queue.Len())
}

func TestTickClosesAtStopLoss(t *testing.T) {
	f := newGateFixture(t)
	require.NoError(t, f.queue.Enqueue(buySignal()))
	require.NoError(t, f.bot.Tick(context.Background()))

	f.market.setPrice(97)
	require.NoError(t, f.bot.Tick(context.Background()))

	assert.Equal(t, 2, f.market.orderCount())
	assert.False(t, f.risk.HasOpenPosition())
	assert.InDelta(t, 999.1, f.ledger.Status().Total, 1e-9)
	assert.Equal(t, 1, f.breaker.Status().ConsecutiveLosses)
}

func TestTickSkipsInvalidMarketData(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*fakeExchange)
		wantErrors int
	}{
		{"ticker fetch fails", func(m *fakeExchange) { m.tickerErr = errors.New("connection reset") }, 1},
		{"crossed ticker", func(m *fakeExchange) { m.crossed = true }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t)
			tt.setup(f.market)
			require.NoError(t, f.queue.Enqueue(buySignal()))

			require.NoError(t, f.bot.Tick(context.Background()))

			assert.Equal(t, 0, f.market.orderCount())
			assert.Equal(t, 1, f.queue.Len(), "signal stays queued until market data is valid")
			assert.Equal(t, tt.wantErrors, f.health.Status().ErrorCount)
		})
	}
}

func TestTickTripsOnFatalFetchError(t *testing.T) {
	f := newGateFixture(t)
	f.market.tickerErr = boterrors.WrapError(errors.New("api key expired"), boterrors.ErrorCategoryCredentials, "exchange", "fetch_ticker")

	err := f.bot.Tick(context.Background())
	assert.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, safety.StateTripped, f.breaker.State())
	assert.Equal(t, safety.CodeFatalError, f.breaker.Status().EmergencyReasons[0].Code)
	assert.Equal(t, 0, f.health.Status().ErrorCount, "fatal errors are not retried")
}

func TestTickHaltsAfterRepeatedVenueFailures(t *testing.T) {
	f := newGateFixture(t)
	f.market.statusErr = &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	for i := 1; i < safety.DefaultHealthConfig().MaxErrors; i++ {
		require.NoError(t, f.bot.Tick(context.Background()), "tick %d", i)
	}
	err := f.bot.Tick(context.Background())
	assert.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, safety.StateTripped, f.breaker.State())

	f.market.statusErr = nil
	assert.ErrorIs(t, f.bot.Tick(context.Background()), ErrHalted)
}

func TestRun(t *testing.T) {
	t.Run("cancelled context stops cleanly", func(t *testing.T) {
		f := newGateFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, f.bot.Run(ctx))
	})

	t.Run("tripped breaker halts", func(t *testing.T) {
		f := newGateFixture(t)
		f.breaker.Trip(safety.CodeManual, "operator stop")
		assert.ErrorIs(t, f.bot.Run(context.Background()), ErrHalted)
	})
}

func TestQueueSource(t *testing.T) {
	q := NewQueueSource("btcusdt", 2)

	assert.Error(t, q.Enqueue(types.Signal{Action: "JUMP", Symbol: "BTCUSDT"}))
	err := q.Enqueue(types.Signal{Action: types.ActionBuy, Symbol: "ETHUSDT", Price: 1, Confidence: 0.7})
	var botErr *boterrors.BotError
	require.ErrorAs(t, err, &botErr)
	assert.Equal(t, boterrors.ErrorCategoryValidation, botErr.Category)

	first := types.Signal{Action: types.ActionBuy, Symbol: "btcusdt", Price: 1, Confidence: 0.7}
	second := types.Signal{Action: types.ActionSell, Symbol: "BTCUSDT", Price: 2, Confidence: 0.9}
	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))
	assert.ErrorIs(t, q.Enqueue(first), ErrQueueFull)
	assert.Equal(t, 1, q.Dropped())

	got, ok, err := q.NextSignal(context.Background(), MarketSnapshot{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, types.ActionBuy, got.Action)
	assert.False(t, got.Time.IsZero())

	got, ok, _ = q.NextSignal(context.Background(), MarketSnapshot{})
	require.True(t, ok)
	assert.Equal(t, types.ActionSell, got.Action)

	_, ok, err = q.NextSignal(context.Background(), MarketSnapshot{})
	assert.NoError(t, err)
	assert.False(t, ok)
}
