package risk

import (
	"fmt"
	"math"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// RiskEvaluator owns trade-frequency and loss-limit state plus the open
// position book. It is not built for concurrent writers; the orchestrator
// serializes pipeline runs. The RWMutex only lets status readers take
// snapshots while a run is in progress.
type RiskEvaluator struct {
	config   Config
	logger   *logger.Logger
	location *time.Location
	now      func() time.Time

	dailyPnL         float64
	dailyTrades      int
	dailyWindowStart string
	lastTradeTime    time.Time
	totalTrades      int

	positions []*Position

	mutex sync.RWMutex
}

// Option customizes a RiskEvaluator
type Option func(*RiskEvaluator)

// WithClock replaces time.Now, used by tests to cross day boundaries
func WithClock(now func() time.Time) Option {
	return func(r *RiskEvaluator) { r.now = now }
}

// NewRiskEvaluator creates an evaluator; zero config fields take defaults
func NewRiskEvaluator(config Config, log *logger.Logger, opts ...Option) (*RiskEvaluator, error) {
	def := DefaultConfig()
	if config.MaxPositionFraction <= 0 {
		config.MaxPositionFraction = def.MaxPositionFraction
	}
	if config.MaxDailyLossFraction <= 0 {
		config.MaxDailyLossFraction = def.MaxDailyLossFraction
	}
	if config.StopLossFraction <= 0 {
		config.StopLossFraction = def.StopLossFraction
	}
	if config.RewardRiskRatio <= 0 {
		config.RewardRiskRatio = def.RewardRiskRatio
	}
	if config.MaxTradesPerDay <= 0 {
		config.MaxTradesPerDay = def.MaxTradesPerDay
	}
	if config.MinTimeBetweenTrades < 0 {
		config.MinTimeBetweenTrades = def.MinTimeBetweenTrades
	}
	if config.MaxOpenPositions <= 0 {
		config.MaxOpenPositions = def.MaxOpenPositions
	}
	if config.TimeZone == "" {
		config.TimeZone = def.TimeZone
	}

	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid trading time zone %q: %w", config.TimeZone, err)
	}

	r := &RiskEvaluator{
		config:   config,
		logger:   log,
		location: loc,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dailyWindowStart = r.dayKey(r.now())

	return r, nil
}

// Config returns the effective limits
func (r *RiskEvaluator) Config() Config {
	return r.config
}

func (r *RiskEvaluator) dayKey(t time.Time) string {
	return t.In(r.location).Format("2006-01-02")
}

// ResetDailyCountersIfNewDay zeroes the daily counters once per trading day
func (r *RiskEvaluator) ResetDailyCountersIfNewDay() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.resetDailyCountersIfNewDay()
}

func (r *RiskEvaluator) resetDailyCountersIfNewDay() {
	today := r.dayKey(r.now())
	if today == r.dailyWindowStart {
		return
	}

	r.logger.Info("New trading day %s: resetting daily counters (pnl $%.2f, trades %d)", today, r.dailyPnL, r.dailyTrades)
	r.dailyPnL = 0
	r.dailyTrades = 0
	r.dailyWindowStart = today
}

// ValidateTrade runs the risk rules in order; the first failing rule wins
func (r *RiskEvaluator) ValidateTrade(signal types.Signal, capital float64) Decision {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.resetDailyCountersIfNewDay()

	details := Details{
		DailyPnL:      r.dailyPnL,
		DailyTrades:   r.dailyTrades,
		OpenPositions: len(r.positions),
		Capital:       capital,
		Confidence:    signal.Confidence,
		Price:         signal.Price,
	}
	reject := func(format string, args ...interface{}) Decision {
		return Decision{Approved: false, Reason: fmt.Sprintf(format, args...), Details: details}
	}

	maxLoss := r.config.MaxDailyLossFraction * capital
	if r.dailyPnL <= -maxLoss {
		return reject("daily loss limit reached: pnl $%.2f, limit -$%.2f", r.dailyPnL, maxLoss)
	}

	if r.dailyTrades >= r.config.MaxTradesPerDay {
		return reject("daily trade limit reached: %d/%d", r.dailyTrades, r.config.MaxTradesPerDay)
	}

	if !r.lastTradeTime.IsZero() {
		elapsed := r.now().Sub(r.lastTradeTime)
		if elapsed < r.config.MinTimeBetweenTrades {
			wait := int(math.Ceil((r.config.MinTimeBetweenTrades - elapsed).Seconds()))
			return reject("minimum time between trades not met: wait %ds", wait)
		}
	}

	if len(r.positions) >= r.config.MaxOpenPositions {
		return reject("open position limit reached: %d/%d", len(r.positions), r.config.MaxOpenPositions)
	}

	if signal.Confidence < MinConfidence {
		return reject("confidence %.2f below minimum %.2f", signal.Confidence, MinConfidence)
	}

	if signal.Price <= 0 {
		return reject("invalid price %.8f: must be positive", signal.Price)
	}

	return Decision{Approved: true, Reason: "approved", Details: details}
}

// CalculatePositionSize returns the order notional in quote currency
func (r *RiskEvaluator) CalculatePositionSize(capital float64, signal types.Signal) float64 {
	if capital <= 0 {
		return 0
	}

	r.mutex.RLock()
	dailyPnL := r.dailyPnL
	r.mutex.RUnlock()

	base := capital * r.config.MaxPositionFraction

	factor := (signal.Confidence - MinConfidence) / (fullConfidence - MinConfidence)
	factor = math.Max(0, math.Min(1, factor))
	size := base * factor

	if dailyPnL < 0 {
		size *= math.Max(0.5, 1+dailyPnL/capital)
	}

	return math.Max(size, capital*minSizeFraction)
}

// CalculateStopLoss offsets entry against the position by the stop fraction
func (r *RiskEvaluator) CalculateStopLoss(entryPrice float64, side types.Side) float64 {
	if side == types.SideSell {
		return entryPrice * (1 + r.config.StopLossFraction)
	}
	return entryPrice * (1 - r.config.StopLossFraction)
}

// CalculateTakeProfit places the target rewardRisk stop-distances in favour
// of the position. A non-positive rewardRisk uses the configured ratio.
func (r *RiskEvaluator) CalculateTakeProfit(entryPrice float64, side types.Side, rewardRisk float64) float64 {
	if rewardRisk <= 0 {
		rewardRisk = r.config.RewardRiskRatio
	}
	distance := entryPrice * r.config.StopLossFraction * rewardRisk
	if side == types.SideSell {
		return entryPrice - distance
	}
	return entryPrice + distance
}

// OpenPosition records a filled entry and stamps the trade counters
func (r *RiskEvaluator) OpenPosition(symbol string, side types.Side, entryPrice, size, cost, stopLoss, takeProfit float64) *Position {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.resetDailyCountersIfNewDay()

	now := r.now()
	pos := &Position{
		ID:         newPositionID(now),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		Size:       size,
		Cost:       cost,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		EntryTime:  now,
	}
	r.positions = append(r.positions, pos)
	r.dailyTrades++
	r.totalTrades++
	r.lastTradeTime = now

	r.logger.Trade("Position %s opened: %s %.8f %s @ %.4f (SL %.4f / TP %.4f)",
		pos.ID, side, size, symbol, entryPrice, stopLoss, takeProfit)

	cp := *pos
	return &cp
}

// ClosePosition realizes the earliest open position
func (r *RiskEvaluator) ClosePosition(exitPrice float64, exitType ExitType) (*ClosedPosition, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.positions) == 0 {
		return nil, fmt.Errorf("no open position to close")
	}
	return r.closeAt(0, exitPrice, exitType), nil
}

// ClosePositionByID realizes the open position with the given ID
func (r *RiskEvaluator) ClosePositionByID(id string, exitPrice float64, exitType ExitType) (*ClosedPosition, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, p := range r.positions {
		if p.ID == id {
			return r.closeAt(i, exitPrice, exitType), nil
		}
	}
	return nil, fmt.Errorf("position %s not found", id)
}

// closeAt must be called with mutex held
func (r *RiskEvaluator) closeAt(i int, exitPrice float64, exitType ExitType) *ClosedPosition {
	r.resetDailyCountersIfNewDay()

	pos := r.positions[i]
	r.positions = append(r.positions[:i], r.positions[i+1:]...)

	pnl := (exitPrice - pos.EntryPrice) * pos.Size
	if pos.Side == types.SideSell {
		pnl = (pos.EntryPrice - exitPrice) * pos.Size
	}
	r.dailyPnL += pnl

	returnPct := 0.0
	if notional := pos.EntryPrice * pos.Size; notional > 0 {
		returnPct = pnl / notional * 100
	}

	pos.PnL = pnl
	closed := &ClosedPosition{
		Position:    *pos,
		ExitPrice:   exitPrice,
		ExitType:    exitType,
		ExitTime:    r.now(),
		RealizedPnL: pnl,
		ReturnPct:   returnPct,
	}

	r.logger.Trade("Position %s closed (%s) @ %.4f: pnl $%.2f (%.2f%%), daily pnl $%.2f",
		pos.ID, exitType, exitPrice, pnl, returnPct, r.dailyPnL)

	return closed
}

// CheckStopLoss reports whether price has crossed the earliest position's stop
func (r *RiskEvaluator) CheckStopLoss(price float64) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if len(r.positions) == 0 {
		return false
	}
	pos := r.positions[0]
	if pos.Side == types.SideSell {
		return price >= pos.StopLoss
	}
	return price <= pos.StopLoss
}

// CheckTakeProfit reports whether price has reached the earliest position's target
func (r *RiskEvaluator) CheckTakeProfit(price float64) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if len(r.positions) == 0 {
		return false
	}
	pos := r.positions[0]
	if pos.Side == types.SideSell {
		return price <= pos.TakeProfit
	}
	return price >= pos.TakeProfit
}

// MarkToMarket updates the running PnL of every open position
func (r *RiskEvaluator) MarkToMarket(price float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, p := range r.positions {
		if p.Side == types.SideSell {
			p.PnL = (p.EntryPrice - price) * p.Size
		} else {
			p.PnL = (price - p.EntryPrice) * p.Size
		}
	}
}

// OpenPositions returns copies of the open positions, oldest first
func (r *RiskEvaluator) OpenPositions() []Position {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Position, len(r.positions))
	for i, p := range r.positions {
		out[i] = *p
	}
	return out
}

// HasOpenPosition reports whether any position is open
func (r *RiskEvaluator) HasOpenPosition() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.positions) > 0
}

// Status returns a snapshot of the counters and open positions
func (r *RiskEvaluator) Status() Snapshot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	positions := make([]Position, len(r.positions))
	for i, p := range r.positions {
		positions[i] = *p
	}

	return Snapshot{
		DailyPnL:          r.dailyPnL,
		DailyTrades:       r.dailyTrades,
		TotalTrades:       r.totalTrades,
		OpenPositions:     len(r.positions),
		DailyWindowStart:  r.dailyWindowStart,
		LastTradeTime:     r.lastTradeTime,
		Positions:         positions,
		MaxTradesPerDay:   r.config.MaxTradesPerDay,
		MaxDailyLossRatio: r.config.MaxDailyLossFraction,
	}
}
