package bybit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// KlineInterval represents the time interval for kline data
type KlineInterval string

const (
	Interval1m  KlineInterval = "1"
	Interval3m  KlineInterval = "3"
	Interval5m  KlineInterval = "5"
	Interval15m KlineInterval = "15"
	Interval30m KlineInterval = "30"
	Interval1h  KlineInterval = "60"
	Interval2h  KlineInterval = "120"
	Interval4h  KlineInterval = "240"
	Interval6h  KlineInterval = "360"
	Interval12h KlineInterval = "720"
	Interval1d  KlineInterval = "D"
	Interval1w  KlineInterval = "W"
)

// ParseInterval accepts Bybit codes ("5", "D") and common forms ("5m", "1h", "1d")
func ParseInterval(s string) (KlineInterval, error) {
	switch s {
	case "1", "3", "5", "15", "30", "60", "120", "240", "360", "720", "D", "W":
		return KlineInterval(s), nil
	case "1m":
		return Interval1m, nil
	case "3m":
		return Interval3m, nil
	case "5m":
		return Interval5m, nil
	case "15m":
		return Interval15m, nil
	case "30m":
		return Interval30m, nil
	case "1h":
		return Interval1h, nil
	case "2h":
		return Interval2h, nil
	case "4h":
		return Interval4h, nil
	case "6h":
		return Interval6h, nil
	case "12h":
		return Interval12h, nil
	case "1d":
		return Interval1d, nil
	case "1w":
		return Interval1w, nil
	}
	return "", fmt.Errorf("unsupported interval %q", s)
}

type tickerResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol       string `json:"symbol"`
		LastPrice    string `json:"lastPrice"`
		Bid1Price    string `json:"bid1Price"`
		Ask1Price    string `json:"ask1Price"`
		HighPrice24h string `json:"highPrice24h"`
		LowPrice24h  string `json:"lowPrice24h"`
		Volume24h    string `json:"volume24h"`
	} `json:"list"`
}

// GetTicker fetches the 24h ticker for symbol
func (c *Client) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": c.config.Category,
		"symbol":   symbol,
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker: %w", err)
	}

	var parsed tickerResult
	if err := decodeResult("get_ticker", result, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.List) == 0 {
		return nil, &APIError{Code: -1, Message: "no ticker data for " + symbol, Op: "get_ticker"}
	}

	t := parsed.List[0]
	return &types.Ticker{
		Symbol:    t.Symbol,
		Price:     parseFloat64(t.LastPrice),
		Bid:       parseFloat64(t.Bid1Price),
		Ask:       parseFloat64(t.Ask1Price),
		High24h:   parseFloat64(t.HighPrice24h),
		Low24h:    parseFloat64(t.LowPrice24h),
		Volume:    parseFloat64(t.Volume24h),
		Timestamp: time.Now(),
	}, nil
}

// GetKlines fetches candles for symbol, returned oldest first
func (c *Client) GetKlines(ctx context.Context, symbol string, interval KlineInterval, limit int) ([]types.OHLCV, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": c.config.Category,
		"symbol":   symbol,
		"interval": string(interval),
		"limit":    limit,
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	var parsed struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	}
	if err := decodeResult("get_klines", result, &parsed); err != nil {
		return nil, err
	}

	return parseKlineList(parsed.List), nil
}

// parseKlineList converts Bybit rows [start, open, high, low, close, volume,
// turnover], which arrive newest first, into ascending candles.
func parseKlineList(rows [][]string) []types.OHLCV {
	candles := make([]types.OHLCV, 0, len(rows))
	for _, item := range rows {
		if len(item) < 6 {
			continue
		}
		candles = append(candles, types.OHLCV{
			Timestamp: time.UnixMilli(parseInt64(item[0])),
			Open:      parseFloat64(item[1]),
			High:      parseFloat64(item[2]),
			Low:       parseFloat64(item[3]),
			Close:     parseFloat64(item[4]),
			Volume:    parseFloat64(item[5]),
		})
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles
}

func parseFloat64(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}

func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	return time.UnixMilli(parseInt64(ts))
}
