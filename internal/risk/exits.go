package risk

import (
	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
)

// Exit is a protective sell of one lot.
type Exit struct {
	Lot    domain.PortfolioLot
	Reason string // stop_loss | take_profit
}

// ProtectiveExits checks every open lot against its stop-loss and take-profit
// levels at price. Lots must be of a single symbol; order is preserved.
func ProtectiveExits(lots []domain.PortfolioLot, price decimal.Decimal, params domain.RiskParams) []Exit {
	var exits []Exit
	for _, lot := range lots {
		if lot.Remaining <= 0 {
			continue
		}
		if params.StopLossPct > 0 {
			stop := lot.Price.Mul(hundred.Sub(decimal.NewFromFloat(params.StopLossPct))).Div(hundred)
			if price.LessThanOrEqual(stop) {
				exits = append(exits, Exit{Lot: lot, Reason: domain.ReasonStopLoss})
				continue
			}
		}
		if params.TakeProfitPct > 0 {
			take := lot.Price.Mul(hundred.Add(decimal.NewFromFloat(params.TakeProfitPct))).Div(hundred)
			if price.GreaterThanOrEqual(take) {
				exits = append(exits, Exit{Lot: lot, Reason: domain.ReasonTakeProfit})
			}
		}
	}
	return exits
}
