package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/notifications"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// Config holds the orchestrator settings
type Config struct {
	OrderTimeout time.Duration `json:"order_timeout" yaml:"order_timeout"`
}

// DefaultConfig returns the default orchestrator settings
func DefaultConfig() Config {
	return Config{OrderTimeout: 30 * time.Second}
}

// Components are the collaborators the pipeline gates on. The manager holds
// references only and changes their state through their public methods.
type Components struct {
	Ledger  *ledger.CapitalLedger
	Risk    *risk.RiskEvaluator
	Health  *safety.HealthMonitor
	Breaker *safety.SafetyBreaker
	Venue   exchange.Venue
}

// Option configures an OrderManager
type Option func(*OrderManager)

// WithNotifier sets the alert channel. Wrap slow notifiers in a
// notifications.Dispatcher.
func WithNotifier(n notifications.Notifier) Option {
	return func(m *OrderManager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithObserver adds a result observer such as the journal or metrics
func WithObserver(o ResultObserver) Option {
	return func(m *OrderManager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithClock replaces time.Now for result timestamps
func WithClock(now func() time.Time) Option {
	return func(m *OrderManager) {
		m.now = now
	}
}

// OrderManager runs signals through the admission pipeline and drives the
// venue. Pipeline runs are serialised; one is in flight at a time.
type OrderManager struct {
	config    Config
	ledger    *ledger.CapitalLedger
	risk      *risk.RiskEvaluator
	health    *safety.HealthMonitor
	breaker   *safety.SafetyBreaker
	venue     exchange.Venue
	validator *safety.Validator
	notifier  notifications.Notifier
	observers []ResultObserver
	logger    *logger.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewOrderManager wires the pipeline
func NewOrderManager(config Config, c Components, log *logger.Logger, opts ...Option) (*OrderManager, error) {
	if c.Ledger == nil || c.Risk == nil || c.Health == nil || c.Breaker == nil || c.Venue == nil {
		return nil, boterrors.NewConfigurationError("orchestrator", "new", "ledger, risk, health, breaker and venue are required")
	}
	if config.OrderTimeout <= 0 {
		config.OrderTimeout = DefaultConfig().OrderTimeout
	}

	m := &OrderManager{
		config:    config,
		ledger:    c.Ledger,
		risk:      c.Risk,
		health:    c.Health,
		breaker:   c.Breaker,
		venue:     c.Venue,
		validator: safety.NewValidator(),
		notifier:  notifications.Nop{},
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.breaker.OnTrip(func(reason safety.EmergencyReason) {
		m.alert(notifications.LevelEmergency, fmt.Sprintf("Kill switch activated\n%s", reason.String()))
	})

	return m, nil
}

// SubmitSignal runs the entry pipeline: breaker, venue health, risk rules,
// sizing, capital reservation, then the order. Only a failure after the
// reservation touches the ledger, and it always releases the reservation.
func (m *OrderManager) SubmitSignal(ctx context.Context, signal types.Signal) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.submit(ctx, signal)
	res.Kind = KindEntry
	res.Signal = signal
	res.Time = m.now()
	m.finish(res)
	return res
}

func (m *OrderManager) submit(ctx context.Context, signal types.Signal) Result {
	if err := signal.Validate(); err != nil {
		return rejected("invalid signal: %v", err)
	}
	side, ok := signal.Action.Side()
	if !ok {
		return rejected("%s signals are not executed", signal.Action)
	}

	m.logger.Info("Gate: checking %s %s @ %.4f (confidence %.2f)", signal.Action, signal.Symbol, signal.Price, signal.Confidence)

	if ok, reason := m.breaker.ShouldContinue(); !ok {
		return rejected("circuit breaker: %s", reason)
	}

	if ok, reason := m.health.ValidateConnection(ctx, m.venue); !ok {
		return rejected("venue connection failed: %s", reason)
	}

	capital := m.ledger.Available()
	if decision := m.risk.ValidateTrade(signal, capital); !decision.Approved {
		return rejected("risk: %s", decision.Reason)
	}

	notional := m.risk.CalculatePositionSize(capital, signal)
	if notional <= 0 {
		return rejected("position size %.2f is not positive", notional)
	}
	baseAmount := notional / signal.Price
	if v := m.validator.ValidateOrderValue(signal.Price, baseAmount, signal.Symbol); !v.Valid {
		return rejected("order: %s", v.Message)
	}

	if ok, reason := m.ledger.CanReserve(notional); !ok {
		return rejected("capital: %s", reason)
	}
	if !m.ledger.Reserve(notional) {
		return rejected("capital: reservation of %.2f failed", notional)
	}

	m.logger.Info("Gate: approved, placing %s %.8f %s (notional $%.2f)", side, baseAmount, signal.Symbol, notional)

	order, err := m.placeOrder(ctx, exchange.OrderRequest{
		Symbol:        signal.Symbol,
		Side:          side,
		BaseAmount:    baseAmount,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		m.ledger.Release(notional)
		res := m.failed("place_order", err)
		res.Notional = notional
		return res
	}

	cost := notional
	if order.HasCost() {
		cost = order.Cost
	} else {
		m.logger.LogWarning("orchestrator", "venue reported no cost for order %s, committing notional %.2f", order.ID, notional)
	}
	// Only this order's reservation is consumed; other holds stay in place.
	m.ledger.Commit(math.Min(cost, notional))
	switch {
	case cost < notional:
		m.ledger.Release(notional - cost)
	case cost > notional:
		m.logger.LogWarning("orchestrator", "order %s cost %.2f exceeds reserved notional %.2f", order.ID, cost, notional)
		m.ledger.Charge(cost - notional)
	}

	entry := signal.Price
	if order.HasPrice() {
		entry = order.Price
	}
	size := baseAmount
	if order.Filled > 0 {
		size = order.Filled
	}
	stopLoss := m.risk.CalculateStopLoss(entry, side)
	takeProfit := m.risk.CalculateTakeProfit(entry, side, 0)
	position := m.risk.OpenPosition(signal.Symbol, side, entry, size, cost, stopLoss, takeProfit)

	m.logger.LogTradeExecution(string(side), order.ID, size, entry, cost, stopLoss, takeProfit)

	return Result{
		Status:   StatusExecuted,
		Reason:   fmt.Sprintf("%s %.8f %s @ %.4f", side, size, signal.Symbol, entry),
		Notional: notional,
		Order:    order,
		Position: position,
	}
}

// ClosePosition exits the earliest open position with an opposite market
// order. The realized value goes back to the ledger and the result is
// recorded on the breaker. Closing is allowed while the breaker is tripped.
func (m *OrderManager) ClosePosition(ctx context.Context, exitPrice float64, exitType risk.ExitType) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.close(ctx, exitPrice, exitType)
	res.Kind = KindExit
	res.Time = m.now()
	m.finish(res)
	return res
}

func (m *OrderManager) close(ctx context.Context, exitPrice float64, exitType risk.ExitType) Result {
	positions := m.risk.OpenPositions()
	if len(positions) == 0 {
		return rejected("no open position")
	}
	pos := positions[0]

	order, err := m.placeOrder(ctx, exchange.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          pos.Side.Opposite(),
		BaseAmount:    pos.Size,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return m.failed("close_position", err)
	}

	if order.HasPrice() {
		exitPrice = order.Price
	}
	closed, err := m.risk.ClosePositionByID(pos.ID, exitPrice, exitType)
	if err != nil {
		return Result{Status: StatusFailed, Reason: err.Error(), Category: boterrors.FailureUnknown, Order: order}
	}

	m.ledger.Deposit(closed.Cost + closed.RealizedPnL)
	m.breaker.RecordTradeResult(closed.RealizedPnL)
	m.logger.LogPositionClosed(string(exitType), closed.EntryPrice, closed.ExitPrice, closed.RealizedPnL, closed.ReturnPct)

	return Result{
		Status: StatusExecuted,
		Reason: fmt.Sprintf("closed %s (%s) pnl %.2f", pos.ID, exitType, closed.RealizedPnL),
		Order:  order,
		Closed: closed,
	}
}

// CheckExits closes the open position when price crosses its stop or
// target. The boolean is false when nothing fired.
func (m *OrderManager) CheckExits(ctx context.Context, price float64) (Result, bool) {
	switch {
	case m.risk.CheckStopLoss(price):
		return m.ClosePosition(ctx, price, risk.ExitStopLoss), true
	case m.risk.CheckTakeProfit(price):
		return m.ClosePosition(ctx, price, risk.ExitTakeProfit), true
	}
	return Result{}, false
}

// placeOrder bounds the venue call by the order timeout. A venue answer with
// a rejected status counts as a venue failure.
func (m *OrderManager) placeOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	orderCtx, cancel := context.WithTimeout(ctx, m.config.OrderTimeout)
	defer cancel()

	order, err := m.venue.PlaceOrder(orderCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(orderCtx.Err(), context.DeadlineExceeded) {
			return nil, boterrors.NewTimeoutError("orchestrator", "place_order", err).
				WithContext("timeout", m.config.OrderTimeout.String())
		}
		return nil, err
	}
	if order == nil {
		return nil, exchange.NewVenueError("EMPTY_RESPONSE", "venue returned no order")
	}
	if order.Status == exchange.OrderStatusRejected {
		return nil, boterrors.NewOrderError("orchestrator", "place_order",
			exchange.NewVenueError("ORDER_REJECTED", fmt.Sprintf("order %s rejected by venue", order.ID)))
	}
	return order, nil
}

func (m *OrderManager) failed(operation string, err error) Result {
	class := boterrors.Classify(err)
	action := m.health.HandleError(err, operation)
	m.logger.LogError(operation, err)
	if action == boterrors.RecoveryActionStop {
		m.logger.LogWarning("orchestrator", "health monitor escalated to stop after %s failure", operation)
	}
	return Result{
		Status:   StatusFailed,
		Reason:   fmt.Sprintf("%s error: %v", class, err),
		Category: class,
	}
}

func rejected(format string, args ...interface{}) Result {
	return Result{Status: StatusRejected, Reason: fmt.Sprintf(format, args...)}
}

// finish logs, notifies and hands the result to the observers
func (m *OrderManager) finish(res Result) {
	switch res.Status {
	case StatusRejected:
		m.logger.Warning("Gate REJECTED %s %s: %s", res.Kind, res.Signal.Symbol, res.Reason)
	case StatusFailed:
		m.logger.Error("Gate FAILED %s %s [%s]: %s", res.Kind, res.Signal.Symbol, res.Category, res.Reason)
		m.alert(notifications.LevelError, fmt.Sprintf("Order failed (%s)\n%s", res.Category, res.Reason))
	case StatusExecuted:
		m.alert(notifications.LevelSuccess, describe(res))
	}

	for _, o := range m.observers {
		o.ObserveResult(res)
	}
}

func (m *OrderManager) alert(level, message string) {
	if err := m.notifier.SendAlert(level, message); err != nil {
		m.logger.LogWarning("notification", "failed to send alert: %v", err)
	}
}

func describe(res Result) string {
	if res.Closed != nil {
		c := res.Closed
		return fmt.Sprintf("Position closed (%s)\n%s %s\nEntry: %.4f\nExit: %.4f\nPnL: %.2f (%.2f%%)",
			c.ExitType, c.Side, c.Symbol, c.EntryPrice, c.ExitPrice, c.RealizedPnL, c.ReturnPct)
	}
	if res.Position != nil {
		p := res.Position
		return fmt.Sprintf("Position opened\n%s %.8f %s @ %.4f\nCost: %.2f\nSL: %.4f / TP: %.4f",
			p.Side, p.Size, p.Symbol, p.EntryPrice, p.Cost, p.StopLoss, p.TakeProfit)
	}
	return res.Reason
}
