package risk

import (
	"time"

	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// MinConfidence is the lowest signal confidence the evaluator accepts
const MinConfidence = 0.60

// fullConfidence is where position sizing reaches its full base amount
const fullConfidence = 0.80

// minSizeFraction is the smallest order, as a fraction of capital
const minSizeFraction = 0.005

// DefaultRewardRisk is the take-profit distance in multiples of the stop distance
const DefaultRewardRisk = 2.0

// Config holds the risk limits
type Config struct {
	MaxPositionFraction  float64       `json:"max_position_fraction" yaml:"max_position_fraction"`
	MaxDailyLossFraction float64       `json:"max_daily_loss_fraction" yaml:"max_daily_loss_fraction"`
	StopLossFraction     float64       `json:"stop_loss_fraction" yaml:"stop_loss_fraction"`
	RewardRiskRatio      float64       `json:"reward_risk_ratio" yaml:"reward_risk_ratio"`
	MaxTradesPerDay      int           `json:"max_trades_per_day" yaml:"max_trades_per_day"`
	MinTimeBetweenTrades time.Duration `json:"min_time_between_trades" yaml:"min_time_between_trades"`
	MaxOpenPositions     int           `json:"max_open_positions" yaml:"max_open_positions"`
	TimeZone             string        `json:"time_zone" yaml:"time_zone"`
}

// DefaultConfig returns the default risk limits
func DefaultConfig() Config {
	return Config{
		MaxPositionFraction:  0.03,
		MaxDailyLossFraction: 0.05,
		StopLossFraction:     0.02,
		RewardRiskRatio:      DefaultRewardRisk,
		MaxTradesPerDay:      5,
		MinTimeBetweenTrades: 300 * time.Second,
		MaxOpenPositions:     1,
		TimeZone:             "UTC",
	}
}

// ExitType says why a position was closed
type ExitType string

const (
	ExitStopLoss   ExitType = "stop_loss"
	ExitTakeProfit ExitType = "take_profit"
	ExitManual     ExitType = "manual"
	ExitSignal     ExitType = "signal"
)

// Position is an open trade
type Position struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Side       types.Side `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	Size       float64    `json:"size"`
	Cost       float64    `json:"cost"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	EntryTime  time.Time  `json:"entry_time"`
	PnL        float64    `json:"pnl"`
}

// ClosedPosition is the record returned when a position is realized
type ClosedPosition struct {
	Position
	ExitPrice   float64   `json:"exit_price"`
	ExitType    ExitType  `json:"exit_type"`
	ExitTime    time.Time `json:"exit_time"`
	RealizedPnL float64   `json:"realized_pnl"`
	ReturnPct   float64   `json:"return_pct"`
}

// Details carries the counters a decision was made against
type Details struct {
	DailyPnL      float64 `json:"daily_pnl"`
	DailyTrades   int     `json:"daily_trades"`
	OpenPositions int     `json:"open_positions"`
	Capital       float64 `json:"capital"`
	Confidence    float64 `json:"confidence"`
	Price         float64 `json:"price"`
}

// Decision is the outcome of ValidateTrade. A rejection is not an error.
type Decision struct {
	Approved bool    `json:"approved"`
	Reason   string  `json:"reason"`
	Details  Details `json:"details"`
}

// Snapshot is a read-only view of the evaluator's counters
type Snapshot struct {
	DailyPnL          float64    `json:"daily_pnl"`
	DailyTrades       int        `json:"daily_trades"`
	TotalTrades       int        `json:"total_trades"`
	OpenPositions     int        `json:"open_positions"`
	DailyWindowStart  string     `json:"daily_window_start"`
	LastTradeTime     time.Time  `json:"last_trade_time"`
	Positions         []Position `json:"positions"`
	MaxTradesPerDay   int        `json:"max_trades_per_day"`
	MaxDailyLossRatio float64    `json:"max_daily_loss_ratio"`
}
