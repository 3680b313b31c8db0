package bybit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderSide represents the side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// Order represents a trading order
type Order struct {
	OrderID      string      `json:"orderId"`
	OrderLinkID  string      `json:"orderLinkId"`
	Symbol       string      `json:"symbol"`
	Side         OrderSide   `json:"side"`
	Qty          string      `json:"qty"`
	OrderStatus  OrderStatus `json:"orderStatus"`
	CumExecQty   string      `json:"cumExecQty"`
	CumExecValue string      `json:"cumExecValue"`
	CumExecFee   string      `json:"cumExecFee"`
	AvgPrice     string      `json:"avgPrice"`
	CreatedTime  time.Time   `json:"createdTime"`
}

type orderRow struct {
	OrderID      string `json:"orderId"`
	OrderLinkID  string `json:"orderLinkId"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Qty          string `json:"qty"`
	OrderStatus  string `json:"orderStatus"`
	CumExecQty   string `json:"cumExecQty"`
	CumExecValue string `json:"cumExecValue"`
	CumExecFee   string `json:"cumExecFee"`
	AvgPrice     string `json:"avgPrice"`
	CreatedTime  string `json:"createdTime"`
}

func (r orderRow) toOrder() Order {
	return Order{
		OrderID:      r.OrderID,
		OrderLinkID:  r.OrderLinkID,
		Symbol:       r.Symbol,
		Side:         OrderSide(r.Side),
		Qty:          r.Qty,
		OrderStatus:  OrderStatus(r.OrderStatus),
		CumExecQty:   r.CumExecQty,
		CumExecValue: r.CumExecValue,
		CumExecFee:   r.CumExecFee,
		AvgPrice:     r.AvgPrice,
		CreatedTime:  parseTimestamp(r.CreatedTime),
	}
}

// PlaceMarketOrder places a market order for qty units of the base coin. A
// client order link ID is generated when orderLinkID is empty.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, orderLinkID string) (*Order, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if side != OrderSideBuy && side != OrderSideSell {
		return nil, fmt.Errorf("invalid side %q", side)
	}

	info, err := c.instruments.GetInstrumentInfo(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument rules: %w", err)
	}
	qtyStr, err := FormatQuantity(info, qty)
	if err != nil {
		return nil, fmt.Errorf("quantity validation failed: %w", err)
	}

	if orderLinkID == "" {
		orderLinkID = uuid.NewString()
	}

	apiParams := map[string]interface{}{
		"category":    c.config.Category,
		"symbol":      symbol,
		"side":        string(side),
		"orderType":   "Market",
		"qty":         qtyStr,
		"orderLinkId": orderLinkID,
	}
	if c.config.Category == "spot" {
		apiParams["marketUnit"] = "baseCoin"
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	var placed struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult("place_order", result, &placed); err != nil {
		return nil, err
	}

	return &Order{
		OrderID:     placed.OrderID,
		OrderLinkID: placed.OrderLinkID,
		Symbol:      symbol,
		Side:        side,
		Qty:         qtyStr,
		OrderStatus: OrderStatusNew,
		CreatedTime: time.Now(),
	}, nil
}

// GetOrder looks an order up in the recent history, which carries the
// executed value and average price that the placement response lacks.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": c.config.Category,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}

	var parsed struct {
		List []orderRow `json:"list"`
	}
	if err := decodeResult("get_order", result, &parsed); err != nil {
		return nil, err
	}

	for _, row := range parsed.List {
		if row.OrderID == orderID {
			order := row.toOrder()
			return &order, nil
		}
	}
	return nil, &APIError{Code: ErrCodeOrderNotFound, Message: "order not found: " + orderID, Op: "get_order"}
}
