package exchange

import (
	"context"
	"time"

	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// MarketData is the read side of an exchange
type MarketData interface {
	FetchTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	// FetchCandles returns candles oldest first
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)
}

// Venue is where orders are executed
type Venue interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Status(ctx context.Context) (types.VenueStatus, error)
}

// Exchange is a venue that also serves market data
type Exchange interface {
	MarketData
	Venue
	Name() string
}

// OrderStatus is the venue's view of an order
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusUnknown         OrderStatus = "unknown"
)

// OrderRequest asks for a market order of BaseAmount units of the base asset
type OrderRequest struct {
	Symbol        string     `json:"symbol"`
	Side          types.Side `json:"side"`
	BaseAmount    float64    `json:"base_amount"`
	ClientOrderID string     `json:"client_order_id"`
}

// Order is the venue's answer to a placement. Price and Cost are zero when
// the venue did not report them.
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          types.Side  `json:"side"`
	Status        OrderStatus `json:"status"`
	Amount        float64     `json:"amount"`
	Filled        float64     `json:"filled"`
	Price         float64     `json:"price"`
	Cost          float64     `json:"cost"`
	Fee           float64     `json:"fee"`
	Timestamp     time.Time   `json:"timestamp"`
}

// HasCost reports whether the venue reported an executed cost
func (o *Order) HasCost() bool {
	return o != nil && o.Cost > 0
}

// HasPrice reports whether the venue reported a fill price
func (o *Order) HasPrice() bool {
	return o != nil && o.Price > 0
}
