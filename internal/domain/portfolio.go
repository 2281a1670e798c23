package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioLot is one purchase batch, consumed oldest-first on sell.
// Invariant: 0 <= Remaining <= Quantity.
type PortfolioLot struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Quantity   int64           `json:"quantity"`
	Remaining  int64           `json:"remaining"`
	Price      decimal.Decimal `json:"price"`
	AcquiredAt time.Time       `json:"acquired_at"`
}

// LedgerSnapshot is a point-in-time valuation of a ledger.
type LedgerSnapshot struct {
	Cash          decimal.Decimal `json:"cash"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	MarketValue   decimal.Decimal `json:"market_value"`
	Equity        decimal.Decimal `json:"equity"`
	Lots          []PortfolioLot  `json:"lots"`
}
