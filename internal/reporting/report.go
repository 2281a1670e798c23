package reporting

import "time"

// Report is the rendered outcome of one simulation run.
type Report struct {
	GeneratedAt time.Time

	Run RunSection

	// Bots sorted by bot_id
	Bots []BotRow

	// Best is the bot with the highest total profit; empty without bots.
	Best string

	// Daily equity rows sorted by (bot_id, day)
	Daily []DailyRow
}

// RunSection describes the simulated run.
type RunSection struct {
	ID           string
	ParentRunID  string
	Name         string
	Status       string
	StartDate    time.Time
	EndDate      time.Time
	Symbols      []string
	Interval     string
	ErrorMessage string
}

// BotRow is one row of the bot summary table.
type BotRow struct {
	BotID                string
	BotName              string
	InitialEquity        float64
	FinalEquity          float64
	TotalProfit          float64
	RealizedPnL          float64
	ReturnPct            float64
	TotalTrades          int
	BuyTrades            int
	SellTrades           int
	WinRate              float64
	InsufficientFunds    int
	CancelledOrders      int
	MaxDrawdown          float64
	MaxDrawdownPct       float64
	MaxConsecutiveLosses int
	DaysSimulated        int
}

// DailyRow is one bot-day of the equity curve.
type DailyRow struct {
	BotID            string
	Day              time.Time
	Equity           float64
	Cash             float64
	DailyRealizedPnL float64
	TradesExecuted   int
}
