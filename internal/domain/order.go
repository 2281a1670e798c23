package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the side of an order.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// OrderType distinguishes immediate fills from price-triggered fills.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeTarget OrderType = "target"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusWaiting           OrderStatus = "waiting"
	OrderStatusInProgress        OrderStatus = "in_progress"
	OrderStatusDone              OrderStatus = "done"
	OrderStatusCancelled         OrderStatus = "cancelled"
	OrderStatusInsufficientFunds OrderStatus = "insufficient_funds"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDone || s == OrderStatusCancelled || s == OrderStatusInsufficientFunds
}

// OrderTransition is one append-only status change.
type OrderTransition struct {
	From OrderStatus `json:"from"`
	To   OrderStatus `json:"to"`
	At   time.Time   `json:"at"`
}

// Order is a simulated or paper order against a PortfolioLedger.
type Order struct {
	ID              string            `json:"id"`
	Seq             int64             `json:"seq"`    // per-bot creation sequence
	RunID           string            `json:"run_id"` // empty for paper trading
	BotID           string            `json:"bot_id"`
	Symbol          string            `json:"symbol"`
	TransactionType TransactionType   `json:"transaction_type"`
	OrderType       OrderType         `json:"order_type"`
	Quantity        int64             `json:"quantity"`
	TargetPrice     decimal.Decimal   `json:"target_price"`
	FillPrice       decimal.Decimal   `json:"fill_price"`
	Status          OrderStatus       `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	LotID           string            `json:"lot_id,omitempty"` // protective exits close this lot only
	RealizedPnL     decimal.Decimal   `json:"realized_pnl"`     // sells only
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	History         []OrderTransition `json:"history"`
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.History = append([]OrderTransition(nil), o.History...)
	return &c
}
