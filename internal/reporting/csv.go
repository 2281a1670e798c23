package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderCSV renders bot summaries as CSV string.
func RenderCSV(rows []BotRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("bot_id,bot_name,initial_equity,final_equity,total_profit,realized_pnl,return_pct,")
	sb.WriteString("total_trades,buy_trades,sell_trades,win_rate,insufficient_funds,cancelled_orders,")
	sb.WriteString("max_drawdown,max_drawdown_pct,max_consecutive_losses,days_simulated\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%.2f,%.2f,%.2f,%.2f,%.4f,%d,%d,%d,%.6f,%d,%d,%.2f,%.4f,%d,%d\n",
			csvField(r.BotID),
			csvField(r.BotName),
			r.InitialEquity,
			r.FinalEquity,
			r.TotalProfit,
			r.RealizedPnL,
			r.ReturnPct,
			r.TotalTrades,
			r.BuyTrades,
			r.SellTrades,
			r.WinRate,
			r.InsufficientFunds,
			r.CancelledOrders,
			r.MaxDrawdown,
			r.MaxDrawdownPct,
			r.MaxConsecutiveLosses,
			r.DaysSimulated,
		))
	}

	return sb.String()
}

// RenderDailyCSV renders the equity curve as CSV string.
func RenderDailyCSV(rows []DailyRow) string {
	var sb strings.Builder
	sb.WriteString("bot_id,day,equity,cash,daily_realized_pnl,trades_executed\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%.2f,%.2f,%.2f,%d\n",
			csvField(r.BotID), r.Day.Format(time.DateOnly), r.Equity, r.Cash, r.DailyRealizedPnL, r.TradesExecuted))
	}
	return sb.String()
}

// csvField quotes values containing separators.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
