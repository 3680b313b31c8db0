package types

import "time"

type OHLCV struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Ticker is the latest quote for a symbol. Price is the last traded price.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"last"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	High24h   float64   `json:"high"`
	Low24h    float64   `json:"low"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}
