package safety

import (
	"fmt"
	"strings"
	"sync"
	"time"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
)

// BreakerState represents the state of the safety breaker
type BreakerState int

const (
	StateArmed BreakerState = iota
	StateTripped
)

// String returns the string representation of the breaker state
func (s BreakerState) String() string {
	switch s {
	case StateArmed:
		return "ARMED"
	case StateTripped:
		return "TRIPPED"
	default:
		return "UNKNOWN"
	}
}

// Trip codes recorded in emergency reasons
const (
	CodeCapitalLoss       = "CAPITAL_LOSS"
	CodeConsecutiveLosses = "CONSECUTIVE_LOSSES"
	CodeMaxRuntime        = "MAX_RUNTIME"
	CodeHealthStop        = "HEALTH_STOP"
	CodeFatalError        = "FATAL_ERROR"
	CodeManual            = "MANUAL"
)

// Store persists the breaker record. *state.FileStore satisfies it.
type Store interface {
	Save(v interface{}) error
	Load(v interface{}) (bool, error)
}

// BreakerConfig holds the kill switch limits
type BreakerConfig struct {
	MaxCapitalLossFraction float64       `json:"max_capital_loss" yaml:"max_capital_loss"`
	MaxConsecutiveLosses   int           `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	MaxRuntime             time.Duration `json:"max_runtime" yaml:"max_runtime"`
}

// DefaultBreakerConfig returns the limits used when none are configured
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxCapitalLossFraction: 0.20,
		MaxConsecutiveLosses:   5,
		MaxRuntime:             24 * time.Hour,
	}
}

// EmergencyReason is one recorded trip cause
type EmergencyReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r EmergencyReason) String() string {
	return r.Code + ": " + r.Message
}

func parseReason(s string) EmergencyReason {
	if code, msg, ok := strings.Cut(s, ": "); ok {
		return EmergencyReason{Code: code, Message: msg}
	}
	return EmergencyReason{Message: s}
}

// BreakerStatus is a point-in-time view of the breaker
type BreakerStatus struct {
	State             string            `json:"state"`
	KillSwitchActive  bool              `json:"kill_switch_active"`
	ConsecutiveLosses int               `json:"consecutive_losses"`
	InitialCapital    float64           `json:"initial_capital"`
	StartTime         time.Time         `json:"start_time"`
	Uptime            string            `json:"uptime"`
	EmergencyReasons  []EmergencyReason `json:"emergency_reasons"`
}

// breakerRecord is the persisted document
type breakerRecord struct {
	InitialCapital    *float64               `json:"initial_capital"`
	ConsecutiveLosses int                    `json:"consecutive_losses"`
	KillSwitchActive  bool                   `json:"kill_switch_active"`
	EmergencyReasons  []string               `json:"emergency_reasons"`
	StartTime         string                 `json:"start_time"`
	Snapshot          map[string]interface{} `json:"snapshot,omitempty"`
}

// SafetyBreaker owns the global kill switch. It starts Armed and moves to
// Tripped when any limit is breached; nothing in the running process moves it
// back. Reset exists for the manual CLI path against persisted state.
type SafetyBreaker struct {
	config            BreakerConfig
	store             Store
	logger            *logger.Logger
	state             BreakerState
	initialCapital    float64
	hasInitial        bool
	consecutiveLosses int
	startTime         time.Time
	reasons           []EmergencyReason
	snapshot          map[string]interface{}
	onTrip            []func(EmergencyReason)
	now               func() time.Time
	mutex             sync.RWMutex
}

// BreakerOption configures optional breaker behaviour
type BreakerOption func(*SafetyBreaker)

// WithBreakerClock replaces the wall clock used for uptime
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *SafetyBreaker) {
		b.now = now
	}
}

// NewSafetyBreaker creates a breaker and restores any persisted state. A
// breaker that was tripped before a restart comes back tripped.
func NewSafetyBreaker(config BreakerConfig, store Store, log *logger.Logger, opts ...BreakerOption) *SafetyBreaker {
	defaults := DefaultBreakerConfig()
	if config.MaxCapitalLossFraction <= 0 {
		config.MaxCapitalLossFraction = defaults.MaxCapitalLossFraction
	}
	if config.MaxConsecutiveLosses <= 0 {
		config.MaxConsecutiveLosses = defaults.MaxConsecutiveLosses
	}
	if config.MaxRuntime <= 0 {
		config.MaxRuntime = defaults.MaxRuntime
	}

	b := &SafetyBreaker{
		config: config,
		store:  store,
		logger: log,
		state:  StateArmed,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.startTime = b.now()
	b.load()

	return b
}

func (b *SafetyBreaker) load() {
	if b.store == nil {
		return
	}

	var rec breakerRecord
	found, err := b.store.Load(&rec)
	if err != nil {
		b.logger.Warning("Failed to load breaker state, starting armed: %v", err)
		return
	}
	if !found {
		return
	}

	if rec.InitialCapital != nil && *rec.InitialCapital > 0 {
		b.initialCapital = *rec.InitialCapital
		b.hasInitial = true
	}
	b.consecutiveLosses = rec.ConsecutiveLosses
	for _, s := range rec.EmergencyReasons {
		b.reasons = append(b.reasons, parseReason(s))
	}
	if rec.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, rec.StartTime); err == nil {
			b.startTime = t
		} else {
			b.logger.Warning("Ignoring unparsable breaker start_time %q", rec.StartTime)
		}
	}
	b.snapshot = rec.Snapshot
	if rec.KillSwitchActive {
		b.state = StateTripped
		b.logger.Warning("Kill switch restored from persisted state: %s", b.firstReasonLocked())
	}
	b.logger.Info("Breaker state loaded: state=%s losses=%d", b.state, b.consecutiveLosses)
}

// OnTrip registers a callback invoked once per recorded trip reason, after
// the breaker lock is released.
func (b *SafetyBreaker) OnTrip(callback func(EmergencyReason)) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.onTrip = append(b.onTrip, callback)
}

// CheckHealth evaluates every trip condition. Breaches trip the breaker and
// are persisted immediately; the caller decides how to stop. Initial capital
// is recorded on the first check that sees a positive capital.
func (b *SafetyBreaker) CheckHealth(capital float64, snapshot risk.Snapshot, healthAction boterrors.RecoveryAction) (bool, []string) {
	b.mutex.Lock()

	dirty := false
	if !b.hasInitial && capital > 0 {
		b.initialCapital = capital
		b.hasInitial = true
		dirty = true
		b.logger.Info("Breaker initial capital recorded: $%.2f", capital)
	}

	var breaches []EmergencyReason
	if b.hasInitial {
		loss := (b.initialCapital - capital) / b.initialCapital
		if loss > b.config.MaxCapitalLossFraction {
			breaches = append(breaches, EmergencyReason{
				Code:    CodeCapitalLoss,
				Message: fmt.Sprintf("capital loss %.2f%% exceeds limit %.2f%%", loss*100, b.config.MaxCapitalLossFraction*100),
			})
		}
	}
	if b.consecutiveLosses >= b.config.MaxConsecutiveLosses {
		breaches = append(breaches, EmergencyReason{
			Code:    CodeConsecutiveLosses,
			Message: fmt.Sprintf("%d consecutive losses (limit %d)", b.consecutiveLosses, b.config.MaxConsecutiveLosses),
		})
	}
	if uptime := b.now().Sub(b.startTime); uptime > b.config.MaxRuntime {
		breaches = append(breaches, EmergencyReason{
			Code:    CodeMaxRuntime,
			Message: fmt.Sprintf("runtime %s exceeds limit %s", uptime.Truncate(time.Second), b.config.MaxRuntime),
		})
	}
	if healthAction == boterrors.RecoveryActionStop {
		breaches = append(breaches, EmergencyReason{
			Code:    CodeHealthStop,
			Message: "health monitor requested stop",
		})
	}

	var fired []EmergencyReason
	if len(breaches) > 0 {
		b.snapshot = riskSummary(capital, snapshot)
		fired = b.tripLocked(breaches)
		dirty = true
	}
	if dirty {
		b.persistLocked()
	}

	healthy := b.state == StateArmed
	problems := make([]string, 0, len(breaches))
	for _, r := range breaches {
		problems = append(problems, r.String())
	}
	if !healthy && len(problems) == 0 {
		problems = append(problems, "kill switch active: "+b.firstReasonLocked())
	}
	callbacks := b.onTrip
	b.mutex.Unlock()

	b.notify(callbacks, fired)
	return healthy, problems
}

// ShouldContinue is the single gate read by the pipeline. Once tripped it
// returns false with the first recorded reason for the rest of the process.
func (b *SafetyBreaker) ShouldContinue() (bool, string) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.state == StateTripped {
		return false, "kill switch active: " + b.firstReasonLocked()
	}
	return true, "ok"
}

// Trip records an explicit emergency
func (b *SafetyBreaker) Trip(code, message string) {
	b.mutex.Lock()
	fired := b.tripLocked([]EmergencyReason{{Code: code, Message: message}})
	b.persistLocked()
	callbacks := b.onTrip
	b.mutex.Unlock()

	b.notify(callbacks, fired)
}

// RecordTradeResult updates the loss streak from a realised PnL. A loss
// extends the streak; anything else ends it.
func (b *SafetyBreaker) RecordTradeResult(pnl float64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if pnl < 0 {
		b.consecutiveLosses++
		b.logger.Warning("Consecutive losses: %d/%d", b.consecutiveLosses, b.config.MaxConsecutiveLosses)
	} else {
		b.consecutiveLosses = 0
	}
	b.persistLocked()
}

// SaveState persists a caller supplied summary next to the breaker fields
func (b *SafetyBreaker) SaveState(snapshot map[string]interface{}) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.snapshot = snapshot
	b.persistLocked()
}

// Reset re-arms the breaker: reasons, loss streak and initial capital are
// cleared and uptime restarts. Only the manual path calls this.
func (b *SafetyBreaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.state = StateArmed
	b.reasons = nil
	b.consecutiveLosses = 0
	b.hasInitial = false
	b.initialCapital = 0
	b.startTime = b.now()
	b.snapshot = nil
	b.persistLocked()
	b.logger.Warning("Safety breaker manually reset")
}

// State returns the current breaker state
func (b *SafetyBreaker) State() BreakerState {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.state
}

// Status returns a snapshot of the breaker
func (b *SafetyBreaker) Status() BreakerStatus {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	reasons := make([]EmergencyReason, len(b.reasons))
	copy(reasons, b.reasons)

	return BreakerStatus{
		State:             b.state.String(),
		KillSwitchActive:  b.state == StateTripped,
		ConsecutiveLosses: b.consecutiveLosses,
		InitialCapital:    b.initialCapital,
		StartTime:         b.startTime,
		Uptime:            b.now().Sub(b.startTime).Truncate(time.Second).String(),
		EmergencyReasons:  reasons,
	}
}

// tripLocked appends reasons whose code is not yet recorded and returns them
func (b *SafetyBreaker) tripLocked(breaches []EmergencyReason) []EmergencyReason {
	var fired []EmergencyReason
	for _, r := range breaches {
		if b.hasCodeLocked(r.Code) {
			continue
		}
		b.reasons = append(b.reasons, r)
		fired = append(fired, r)
		b.logger.LogEmergency(r.Code, r.Message)
	}
	if b.state != StateTripped {
		b.state = StateTripped
		b.logger.Error("Safety breaker TRIPPED: %s", b.firstReasonLocked())
	}
	return fired
}

func (b *SafetyBreaker) hasCodeLocked(code string) bool {
	for _, r := range b.reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

func (b *SafetyBreaker) firstReasonLocked() string {
	if len(b.reasons) == 0 {
		return "unspecified"
	}
	return b.reasons[0].String()
}

func (b *SafetyBreaker) persistLocked() {
	if b.store == nil {
		return
	}

	rec := breakerRecord{
		ConsecutiveLosses: b.consecutiveLosses,
		KillSwitchActive:  b.state == StateTripped,
		EmergencyReasons:  make([]string, 0, len(b.reasons)),
		StartTime:         b.startTime.Format(time.RFC3339),
		Snapshot:          b.snapshot,
	}
	if b.hasInitial {
		initial := b.initialCapital
		rec.InitialCapital = &initial
	}
	for _, r := range b.reasons {
		rec.EmergencyReasons = append(rec.EmergencyReasons, r.String())
	}

	if err := b.store.Save(&rec); err != nil {
		b.logger.LogError("persist breaker state", err)
	}
}

func (b *SafetyBreaker) notify(callbacks []func(EmergencyReason), fired []EmergencyReason) {
	for _, r := range fired {
		for _, cb := range callbacks {
			cb(r)
		}
	}
}

func riskSummary(capital float64, s risk.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"capital":        capital,
		"daily_pnl":      s.DailyPnL,
		"daily_trades":   s.DailyTrades,
		"total_trades":   s.TotalTrades,
		"open_positions": s.OpenPositions,
	}
}
