package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/monitoring"
	"github.com/ducminhle1904/crypto-trade-gate/internal/orchestrator"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// ErrHalted is returned by Run and Tick once the safety breaker has tripped
var ErrHalted = errors.New("trading halted by safety breaker")

// Config drives the polling loop
type Config struct {
	Symbol       string
	Interval     string
	CandleLimit  int
	MinCandles   int
	PollInterval time.Duration
}

// Components are the collaborators the loop drives. Metrics is optional.
type Components struct {
	Market  exchange.MarketData
	Venue   exchange.Venue
	Orders  *orchestrator.OrderManager
	Ledger  *ledger.CapitalLedger
	Risk    *risk.RiskEvaluator
	Health  *safety.HealthMonitor
	Breaker *safety.SafetyBreaker
	Source  SignalSource
	Metrics *monitoring.Metrics
}

// GateBot is the single control loop. It polls market data, runs the exit
// checks and the kill switch, and feeds at most one signal per tick to the
// orchestrator. Nothing else submits trades.
type GateBot struct {
	config Config
	c      Components
	logger *logger.Logger
	now    func() time.Time

	ticks int
}

// NewGateBot wires the loop
func NewGateBot(config Config, c Components, log *logger.Logger) (*GateBot, error) {
	if c.Market == nil || c.Venue == nil || c.Orders == nil || c.Ledger == nil ||
		c.Risk == nil || c.Health == nil || c.Breaker == nil || c.Source == nil {
		return nil, boterrors.NewConfigurationError("bot", "new", "missing component")
	}
	if config.Symbol == "" {
		return nil, boterrors.NewConfigurationError("bot", "new", "symbol is required")
	}
	if config.Interval == "" {
		config.Interval = "5m"
	}
	if config.CandleLimit <= 0 {
		config.CandleLimit = 100
	}
	if config.MinCandles <= 0 || config.MinCandles > config.CandleLimit {
		config.MinCandles = config.CandleLimit / 2
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 60 * time.Second
	}

	return &GateBot{config: config, c: c, logger: log, now: time.Now}, nil
}

// Run ticks immediately and then every poll interval until ctx is done or the
// breaker trips. A cancelled context is a clean stop and returns nil.
func (b *GateBot) Run(ctx context.Context) error {
	b.logger.Info("Trade gate loop started: %s every %s", b.config.Symbol, b.config.PollInterval)

	ticker := time.NewTicker(b.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := b.Tick(ctx); err != nil {
			if errors.Is(err, ErrHalted) {
				b.logger.Error("Trade gate loop stopped: %v", err)
				return err
			}
			if ctx.Err() != nil {
				break
			}
			b.logger.LogError("tick", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			b.logger.Info("Stop signal received - ending trade gate loop")
			return nil
		}
	}

	b.logger.Info("Stop signal received - ending trade gate loop")
	return nil
}

// Tick runs one pass of the loop. Market data problems are counted by the
// health monitor and end the tick early; only a tripped breaker is returned
// as ErrHalted.
func (b *GateBot) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in trade gate loop: %v", r)
		}
	}()

	b.ticks++
	if ok, reason := b.c.Breaker.ShouldContinue(); !ok {
		return fmt.Errorf("%w: %s", ErrHalted, reason)
	}
	b.c.Risk.ResetDailyCountersIfNewDay()
	defer b.publish()

	if ok, msg := b.c.Health.ValidateConnection(ctx, b.c.Venue); !ok {
		b.logger.LogWarning("Venue check failed", "%s", msg)
		return b.guard()
	}

	snapshot, err := b.snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.logger.LogWarning("Market data unavailable", "%v", err)
		return b.guard()
	}

	price := snapshot.Ticker.Price
	b.c.Risk.MarkToMarket(price)
	if b.c.Metrics != nil {
		b.c.Metrics.UpdatePrice(b.config.Symbol, price)
	}
	b.logger.Status("%s $%.4f | capital $%.2f available | %d open",
		b.config.Symbol, price, b.c.Ledger.Available(), len(b.c.Risk.OpenPositions()))

	if res, closed := b.c.Orders.CheckExits(ctx, price); closed && !res.Executed() {
		b.logger.LogWarning("Exit not executed", "%s", res.Reason)
	}

	if err := b.guard(); err != nil {
		return err
	}

	b.handleSignal(ctx, snapshot)
	return nil
}

// snapshot fetches and validates the ticker and candle history. Fetch
// failures are counted; malformed data is only logged.
func (b *GateBot) snapshot(ctx context.Context) (MarketSnapshot, error) {
	ticker, err := b.c.Market.FetchTicker(ctx, b.config.Symbol)
	if err != nil {
		b.fetchFailed("fetch_ticker", err)
		return MarketSnapshot{}, fmt.Errorf("fetch ticker: %w", err)
	}
	ok, reason, clean := b.c.Health.ValidateTicker(ticker)
	if !ok {
		return MarketSnapshot{}, fmt.Errorf("invalid ticker: %s", reason)
	}

	candles, err := b.c.Market.FetchCandles(ctx, b.config.Symbol, b.config.Interval, b.config.CandleLimit)
	if err != nil {
		b.fetchFailed("fetch_candles", err)
		return MarketSnapshot{}, fmt.Errorf("fetch candles: %w", err)
	}
	if ok, reason := b.c.Health.ValidateCandles(candles, b.config.MinCandles); !ok {
		return MarketSnapshot{}, fmt.Errorf("invalid candles: %s", reason)
	}

	return MarketSnapshot{
		Symbol:  b.config.Symbol,
		Ticker:  *clean,
		Candles: candles,
		Time:    b.now(),
	}, nil
}

// fetchFailed reacts to a market data failure. Credential and configuration
// errors trip the breaker at once since waiting will not clear them. Anything
// else is counted by the health monitor: retry and skip both end this tick
// and the next tick fetches again, while stop is acted on by guard.
func (b *GateBot) fetchFailed(op string, err error) {
	botErr := boterrors.CategorizeError(err, "bot", op)
	if botErr.IsFatal() {
		b.c.Breaker.Trip(safety.CodeFatalError, fmt.Sprintf("%s: %v", op, err))
		return
	}
	if action := b.c.Health.HandleError(err, op); action == boterrors.RecoveryActionSkip {
		b.logger.LogWarning("Market data", "%s keeps failing (%d consecutive errors)", op, b.c.Health.Status().ErrorCount)
	}
}

// guard runs the kill switch over current equity and persists a summary
func (b *GateBot) guard() error {
	action, _ := b.c.Health.ShouldEmergencyStop()
	snapshot := b.c.Risk.Status()
	equity := b.equity(snapshot)

	healthy, problems := b.c.Breaker.CheckHealth(equity, snapshot, action)
	b.c.Breaker.SaveState(map[string]interface{}{
		"equity":         equity,
		"available":      b.c.Ledger.Available(),
		"daily_pnl":      snapshot.DailyPnL,
		"daily_trades":   snapshot.DailyTrades,
		"total_trades":   snapshot.TotalTrades,
		"open_positions": snapshot.OpenPositions,
		"ticks":          b.ticks,
	})
	if !healthy {
		for _, p := range problems {
			b.logger.Error("Safety check failed: %s", p)
		}
		return fmt.Errorf("%w: %v", ErrHalted, problems)
	}
	return nil
}

// equity is ledger capital plus the marked value of open positions. The
// ledger alone drops by the entry cost while a position is open.
func (b *GateBot) equity(snapshot risk.Snapshot) float64 {
	equity := b.c.Ledger.Status().Total
	for _, p := range snapshot.Positions {
		equity += p.Cost + p.PnL
	}
	return equity
}

func (b *GateBot) handleSignal(ctx context.Context, snapshot MarketSnapshot) {
	signal, ok, err := b.c.Source.NextSignal(ctx, snapshot)
	if err != nil {
		b.logger.LogWarning("Signal source failed", "%v", err)
		return
	}
	if !ok || signal.Action == types.ActionHold {
		return
	}

	res := b.c.Orders.SubmitSignal(ctx, signal)
	if !res.Executed() {
		b.logger.Info("Signal %s %s not executed: %s", signal.Action, signal.Symbol, res.Reason)
	}
}

// publish pushes component state to the metrics registry
func (b *GateBot) publish() {
	if b.c.Metrics == nil {
		return
	}
	b.c.Metrics.UpdateLedger(b.c.Ledger.Status())
	b.c.Metrics.UpdateSafety(b.c.Health.Status(), b.c.Breaker.Status())
	b.c.Metrics.UpdateOpenPositions(len(b.c.Risk.OpenPositions()))
}
