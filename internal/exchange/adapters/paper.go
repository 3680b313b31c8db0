package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// DefaultPaperFeeRate is the taker fee charged on simulated fills
const DefaultPaperFeeRate = 0.001

// PaperVenue fills market orders at the current quote without touching a
// real account. Market data is delegated to the wrapped source.
type PaperVenue struct {
	market  exchange.MarketData
	feeRate float64
	now     func() time.Time

	mu     sync.Mutex
	orders []exchange.Order
}

// NewPaperVenue creates a dry-run venue over market
func NewPaperVenue(market exchange.MarketData, feeRate float64) *PaperVenue {
	if feeRate < 0 {
		feeRate = 0
	}
	return &PaperVenue{market: market, feeRate: feeRate, now: time.Now}
}

// Name returns the exchange name
func (p *PaperVenue) Name() string {
	return "paper"
}

// FetchTicker delegates to the wrapped market data source
func (p *PaperVenue) FetchTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	return p.market.FetchTicker(ctx, symbol)
}

// FetchCandles delegates to the wrapped market data source
func (p *PaperVenue) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	return p.market.FetchCandles(ctx, symbol, interval, limit)
}

// PlaceOrder fills buys at the ask and sells at the bid, falling back to the
// last price when the book side is empty.
func (p *PaperVenue) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	if req.Symbol == "" || req.BaseAmount <= 0 {
		return nil, exchange.ErrInvalidOrder
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return nil, exchange.ErrInvalidOrder
	}

	ticker, err := p.market.FetchTicker(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	price := ticker.Price
	if req.Side == types.SideBuy && ticker.Ask > 0 {
		price = ticker.Ask
	} else if req.Side == types.SideSell && ticker.Bid > 0 {
		price = ticker.Bid
	}
	if price <= 0 {
		return nil, exchange.NewVenueError("NO_PRICE", fmt.Sprintf("no price for %s", req.Symbol))
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	cost := price * req.BaseAmount
	order := exchange.Order{
		ID:            "paper-" + uuid.NewString(),
		ClientOrderID: clientID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Status:        exchange.OrderStatusFilled,
		Amount:        req.BaseAmount,
		Filled:        req.BaseAmount,
		Price:         price,
		Cost:          cost,
		Fee:           cost * p.feeRate,
		Timestamp:     p.now(),
	}

	p.mu.Lock()
	p.orders = append(p.orders, order)
	p.mu.Unlock()

	return &order, nil
}

// Status always reports online; the simulated venue has no outages
func (p *PaperVenue) Status(ctx context.Context) (types.VenueStatus, error) {
	return types.VenueOnline, nil
}

// Orders returns a copy of the simulated fills
func (p *PaperVenue) Orders() []exchange.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]exchange.Order, len(p.orders))
	copy(out, p.orders)
	return out
}
