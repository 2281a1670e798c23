package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	title := r.Run.Name
	if title == "" {
		title = r.Run.ID
	}
	sb.WriteString(fmt.Sprintf("# Simulation Report: %s\n\n", title))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run
	sb.WriteString("## Run\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Run ID | %s |\n", r.Run.ID))
	if r.Run.ParentRunID != "" {
		sb.WriteString(fmt.Sprintf("| Rerun Of | %s |\n", r.Run.ParentRunID))
	}
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.Run.Status))
	sb.WriteString(fmt.Sprintf("| Date Range | %s to %s |\n",
		r.Run.StartDate.Format(time.DateOnly), r.Run.EndDate.Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("| Symbols | %s |\n", strings.Join(r.Run.Symbols, ", ")))
	sb.WriteString(fmt.Sprintf("| Interval | %s |\n", r.Run.Interval))
	sb.WriteString("\n")

	if r.Run.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n\n", r.Run.ErrorMessage))
	}

	// Bots
	sb.WriteString("## Bot Results\n\n")
	if len(r.Bots) > 0 {
		sb.WriteString("| Bot | Final Equity | Profit | Return % | Trades | Buys | Sells | WinRate | MaxDD | MaxDD % | MaxLoss | Days |\n")
		sb.WriteString("|-----|--------------|--------|----------|--------|------|-------|---------|-------|---------|---------|------|\n")
		for _, b := range r.Bots {
			name := b.BotID
			if b.BotName != "" {
				name = fmt.Sprintf("%s (%s)", b.BotName, b.BotID)
			}
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f | %d | %d | %d | %.4f | %.2f | %.2f | %d | %d |\n",
				name, b.FinalEquity, b.TotalProfit, b.ReturnPct,
				b.TotalTrades, b.BuyTrades, b.SellTrades, b.WinRate,
				b.MaxDrawdown, b.MaxDrawdownPct, b.MaxConsecutiveLosses, b.DaysSimulated))
		}
		sb.WriteString("\n")
		if r.Best != "" {
			sb.WriteString(fmt.Sprintf("Best bot by total profit: **%s**\n", r.Best))
		}
	} else {
		sb.WriteString("No bot results available.\n")
	}
	sb.WriteString("\n")

	// Failed orders
	var failed []BotRow
	for _, b := range r.Bots {
		if b.InsufficientFunds > 0 || b.CancelledOrders > 0 {
			failed = append(failed, b)
		}
	}
	if len(failed) > 0 {
		sb.WriteString("## Unfilled Orders\n\n")
		sb.WriteString("| Bot | Insufficient Funds | Cancelled |\n")
		sb.WriteString("|-----|--------------------|-----------|\n")
		for _, b := range failed {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d |\n", b.BotID, b.InsufficientFunds, b.CancelledOrders))
		}
		sb.WriteString("\n")
	}

	// Equity curve
	sb.WriteString("## Daily Equity\n\n")
	if len(r.Daily) > 0 {
		sb.WriteString("| Bot | Day | Equity | Cash | Daily P&L | Trades |\n")
		sb.WriteString("|-----|-----|--------|------|-----------|--------|\n")
		for _, d := range r.Daily {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %.2f | %.2f | %d |\n",
				d.BotID, d.Day.Format(time.DateOnly), d.Equity, d.Cash, d.DailyRealizedPnL, d.TradesExecuted))
		}
	} else {
		sb.WriteString("No daily results available.\n")
	}

	return sb.String()
}
