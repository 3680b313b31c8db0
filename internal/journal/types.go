package journal

import "time"

// Decision is one pipeline outcome
type Decision struct {
	ID         int64
	Time       time.Time
	Kind       string
	Status     string
	Symbol     string
	Action     string
	Price      float64
	Confidence float64
	Notional   float64
	Category   string
	Reason     string
	OrderID    string
}

// TradeRecord is a realized position
type TradeRecord struct {
	PositionID  string
	Symbol      string
	Side        string
	Size        float64
	EntryPrice  float64
	ExitPrice   float64
	Cost        float64
	EntryTime   time.Time
	ExitTime    time.Time
	RealizedPnL float64
	ReturnPct   float64
	ExitType    string
}
