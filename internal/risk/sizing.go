package risk

import (
	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// SizeInput is the state needed to size a buy.
type SizeInput struct {
	Params   domain.RiskParams
	Price    decimal.Decimal
	Equity   decimal.Decimal
	Cash     decimal.Decimal
	Exposure decimal.Decimal // current market value held in the symbol
	Scale    float64         // 1 when scaling is disabled
}

// BuyQuantity sizes a buy in whole shares.
//
// The amount at risk is equity × risk_per_trade%. With a stop-loss configured
// the per-share risk is price × stop_loss%, otherwise the whole price. The
// result is scaled, capped by remaining max position size and by cash, then
// floored. Zero means the trade is too small to place.
func BuyQuantity(in SizeInput) int64 {
	if !in.Price.IsPositive() || !in.Equity.IsPositive() {
		return 0
	}

	riskPct := decimal.NewFromFloat(in.Params.RiskPerTradePct)
	if !riskPct.IsPositive() {
		return 0
	}
	riskAmount := in.Equity.Mul(riskPct).Div(hundred)

	perShare := in.Price
	if in.Params.StopLossPct > 0 {
		perShare = in.Price.Mul(decimal.NewFromFloat(in.Params.StopLossPct)).Div(hundred)
	}
	qty := riskAmount.Div(perShare)

	if in.Scale < 1 {
		qty = qty.Mul(decimal.NewFromFloat(clamp01(in.Scale)))
	}

	if in.Params.MaxPositionSize.IsPositive() {
		room := in.Params.MaxPositionSize.Sub(in.Exposure)
		if !room.IsPositive() {
			return 0
		}
		qty = decimal.Min(qty, room.Div(in.Price))
	}
	qty = decimal.Min(qty, in.Cash.Div(in.Price))

	q := qty.Floor().IntPart()
	if q < 0 {
		return 0
	}
	return q
}

// SellQuantity sizes a signal-driven sell of an existing position.
// Without scaling the whole position is sold.
func SellQuantity(position int64, scale float64, scaling bool) int64 {
	if position <= 0 {
		return 0
	}
	if !scaling {
		return position
	}
	return decimal.NewFromInt(position).Mul(decimal.NewFromFloat(clamp01(scale))).Floor().IntPart()
}
