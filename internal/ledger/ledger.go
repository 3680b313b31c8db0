package ledger

import (
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
)

// Store persists the ledger record. *state.FileStore satisfies it.
type Store interface {
	Save(v interface{}) error
	Load(v interface{}) (bool, error)
}

// Config holds the ledger limits
type Config struct {
	InitialCapital      float64 `json:"initial_capital" yaml:"initial_capital"`
	MaxPositionFraction float64 `json:"max_position_fraction" yaml:"max_position_fraction"`
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		InitialCapital:      1000.0,
		MaxPositionFraction: 0.03,
	}
}

// Status is a point-in-time view of the ledger
type Status struct {
	Total       float64 `json:"total"`
	Reserved    float64 `json:"reserved"`
	Available   float64 `json:"available"`
	MaxFraction float64 `json:"max_fraction"`
}

// record is the persisted document. Pointers distinguish missing keys.
type record struct {
	CurrentCapital *float64 `json:"current_capital"`
	Reserved       *float64 `json:"reserved"`
}

// CapitalLedger owns the capital figure and the funds held for in-flight
// orders. Every exported method takes the same mutex, and every mutation is
// persisted before the lock is released. reserved stays within [0, total].
// Amounts are kept as decimals so a reserve followed by a release of the
// same amount restores the previous figure exactly.
type CapitalLedger struct {
	mu          sync.Mutex
	total       decimal.Decimal
	reserved    decimal.Decimal
	maxFraction decimal.Decimal
	store       Store
	logger      *logger.Logger
}

// NewCapitalLedger builds a ledger from cfg, then lets the persisted record
// (if any) override the configured capital.
func NewCapitalLedger(cfg Config, store Store, log *logger.Logger) *CapitalLedger {
	def := DefaultConfig()
	if !positive(cfg.InitialCapital) {
		cfg.InitialCapital = def.InitialCapital
	}
	if !positive(cfg.MaxPositionFraction) || cfg.MaxPositionFraction > 1 {
		cfg.MaxPositionFraction = def.MaxPositionFraction
	}

	l := &CapitalLedger{
		total:       decimal.NewFromFloat(cfg.InitialCapital),
		maxFraction: decimal.NewFromFloat(cfg.MaxPositionFraction),
		store:       store,
		logger:      log,
	}
	l.load()

	return l
}

func (l *CapitalLedger) load() {
	if l.store == nil {
		return
	}

	var rec record
	found, err := l.store.Load(&rec)
	if err != nil {
		l.logger.LogError("Ledger state load failed, using configured capital", err)
		return
	}
	if !found {
		l.logger.Info("No ledger state found, starting with capital $%s", l.total.StringFixed(2))
		return
	}

	if rec.CurrentCapital != nil && isFinite(*rec.CurrentCapital) && *rec.CurrentCapital >= 0 {
		l.total = decimal.NewFromFloat(*rec.CurrentCapital)
	}
	if rec.Reserved != nil && positive(*rec.Reserved) {
		l.reserved = decimal.NewFromFloat(*rec.Reserved)
	}
	if l.reserved.GreaterThan(l.total) {
		l.logger.Warning("Persisted reservation $%s exceeds capital $%s, clamping", l.reserved.StringFixed(2), l.total.StringFixed(2))
		l.reserved = l.total
	}
	if l.reserved.IsPositive() {
		l.logger.Warning("Ledger restored with $%s still reserved; an order may have been in flight at shutdown", l.reserved.StringFixed(2))
	}

	l.logger.Info("Ledger restored: capital $%s, reserved $%s", l.total.StringFixed(2), l.reserved.StringFixed(2))
}

// persist must be called with mu held
func (l *CapitalLedger) persist() {
	if l.store == nil {
		return
	}
	total, reserved := l.total.InexactFloat64(), l.reserved.InexactFloat64()
	if err := l.store.Save(record{CurrentCapital: &total, Reserved: &reserved}); err != nil {
		l.logger.LogError("Ledger state persist failed", err)
	}
}

// CanReserve reports whether amount could be reserved right now
func (l *CapitalLedger) CanReserve(amount float64) (bool, string) {
	if !isFinite(amount) {
		return false, fmt.Sprintf("invalid amount %v: must be a finite number", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canReserve(decimal.NewFromFloat(amount))
}

func (l *CapitalLedger) canReserve(amount decimal.Decimal) (bool, string) {
	if !amount.IsPositive() {
		return false, fmt.Sprintf("invalid amount $%s: must be positive", amount.StringFixed(2))
	}

	available := l.total.Sub(l.reserved)
	if amount.GreaterThan(available) {
		return false, fmt.Sprintf("insufficient capital: requested $%s, available $%s", amount.StringFixed(2), available.StringFixed(2))
	}

	maxAmount := l.total.Mul(l.maxFraction)
	if amount.GreaterThan(maxAmount) {
		return false, fmt.Sprintf("amount $%s exceeds per-trade limit $%s (%s%% of capital)",
			amount.StringFixed(2), maxAmount.StringFixed(2), l.maxFraction.Shift(2).String())
	}

	return true, "ok"
}

// Reserve holds amount for a pending order. It returns false and changes
// nothing when CanReserve would reject the amount.
func (l *CapitalLedger) Reserve(amount float64) bool {
	if !isFinite(amount) {
		l.logger.Warning("Reservation of %v refused: amount is not a finite number", amount)
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	d := decimal.NewFromFloat(amount)
	if ok, reason := l.canReserve(d); !ok {
		l.logger.Warning("Reservation of $%.2f refused: %s", amount, reason)
		return false
	}

	l.reserved = l.reserved.Add(d)
	l.persist()
	l.logger.Info("Reserved $%.2f (reserved $%s / capital $%s)", amount, l.reserved.StringFixed(2), l.total.StringFixed(2))
	return true
}

// Release returns reserved funds to the available pool, floored at zero
func (l *CapitalLedger) Release(amount float64) {
	if !l.acceptAmount("release", amount) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserved = floorZero(l.reserved.Sub(decimal.NewFromFloat(amount)))
	l.persist()
	l.logger.Info("Released $%.2f (reserved $%s)", amount, l.reserved.StringFixed(2))
}

// Commit consumes amount from both the reservation and the capital, each
// floored at zero. Call it once the venue reports an executed cost.
func (l *CapitalLedger) Commit(amount float64) {
	if !l.acceptAmount("commit", amount) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	d := decimal.NewFromFloat(amount)
	l.reserved = floorZero(l.reserved.Sub(d))
	l.total = floorZero(l.total.Sub(d))
	l.persist()
	l.logger.Info("Committed $%.2f (capital $%s, reserved $%s)", amount, l.total.StringFixed(2), l.reserved.StringFixed(2))
}

// Charge takes amount from the capital without touching reservations. It
// covers a fill that cost more than the amount reserved for it.
func (l *CapitalLedger) Charge(amount float64) {
	if !l.acceptAmount("charge", amount) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.total = floorZero(l.total.Sub(decimal.NewFromFloat(amount)))
	if l.reserved.GreaterThan(l.total) {
		l.reserved = l.total
	}
	l.persist()
	l.logger.Info("Charged $%.2f (capital $%s, reserved $%s)", amount, l.total.StringFixed(2), l.reserved.StringFixed(2))
}

// Deposit adds realized proceeds or a manual top-up to the capital
func (l *CapitalLedger) Deposit(amount float64) {
	if !l.acceptAmount("deposit", amount) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.total = l.total.Add(decimal.NewFromFloat(amount))
	l.persist()
	l.logger.Info("Deposited $%.2f (capital $%s)", amount, l.total.StringFixed(2))
}

// Available returns capital not held by reservations
func (l *CapitalLedger) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total.Sub(l.reserved).InexactFloat64()
}

// Status returns a snapshot of the ledger
func (l *CapitalLedger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Total:       l.total.InexactFloat64(),
		Reserved:    l.reserved.InexactFloat64(),
		Available:   l.total.Sub(l.reserved).InexactFloat64(),
		MaxFraction: l.maxFraction.InexactFloat64(),
	}
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// acceptAmount filters the amounts a mutation ignores. Non-positive amounts
// are silently dropped; NaN and infinities are logged.
func (l *CapitalLedger) acceptAmount(op string, amount float64) bool {
	if !isFinite(amount) {
		l.logger.Warning("Ledger %s of %v ignored: amount is not a finite number", op, amount)
		return false
	}
	return amount > 0
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func positive(f float64) bool {
	return isFinite(f) && f > 0
}
