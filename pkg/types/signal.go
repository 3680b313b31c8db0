package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Action is what a strategy asks the gate to do
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction accepts buy/sell/hold in any case
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	case ActionHold:
		return ActionHold, nil
	}
	return "", fmt.Errorf("unknown signal action %q", s)
}

// Side is the direction of an order or position
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that closes a position opened on s
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Side maps a tradeable action onto an order side
func (a Action) Side() (Side, bool) {
	switch a {
	case ActionBuy:
		return SideBuy, true
	case ActionSell:
		return SideSell, true
	}
	return "", false
}

// Signal is a strategy's proposal to trade
type Signal struct {
	Action     Action    `json:"action"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	Time       time.Time `json:"time,omitempty"`
}

// Validate checks the fields every signal must carry. Policy checks such as
// minimum confidence or a positive price are left to the risk evaluator.
func (s Signal) Validate() error {
	if _, err := ParseAction(string(s.Action)); err != nil {
		return err
	}
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("signal symbol is required")
	}
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
		return fmt.Errorf("signal price is not a number")
	}
	if math.IsNaN(s.Confidence) || s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal confidence %.4f outside [0, 1]", s.Confidence)
	}
	return nil
}
