package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/storage/memory"
)

var (
	fixedNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	monday   = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
)

func setupTestData(t *testing.T) *Generator {
	t.Helper()
	ctx := context.Background()

	runs := memory.NewSimulationRunStore()
	configs := memory.NewBotSimulationConfigStore()
	daily := memory.NewDailyResultStore()
	orders := memory.NewOrderStore()

	run := &domain.SimulationRun{
		ID: "run-1", Name: "march", Status: domain.RunStatusCompleted,
		StartDate: monday, EndDate: monday.AddDate(0, 0, 1),
		Symbols: []string{"AAPL", "MSFT"}, Interval: domain.Interval1Min,
	}
	if err := runs.Insert(ctx, run); err != nil {
		t.Fatalf("Insert run failed: %v", err)
	}

	pin := func(id, name string) *domain.BotSimulationConfig {
		return &domain.BotSimulationConfig{RunID: "run-1", BotID: id, BotVersion: 1,
			Config: domain.BotConfig{ID: id, Name: name, Budget: domain.Budget{Cash: decimal.NewFromInt(1000)}}}
	}
	if err := configs.InsertBulk(ctx, []*domain.BotSimulationConfig{pin("beta", "Beta"), pin("alpha", "Alpha, Inc")}); err != nil {
		t.Fatalf("Insert configs failed: %v", err)
	}

	rows := []*domain.DailyResult{
		{ID: "d1", RunID: "run-1", BotID: "alpha", Day: monday, Equity: decimal.NewFromInt(1050), Cash: decimal.NewFromInt(500), TradesExecuted: 1},
		{ID: "d2", RunID: "run-1", BotID: "alpha", Day: monday.AddDate(0, 0, 1), Equity: decimal.NewFromInt(1100), Cash: decimal.NewFromInt(1100), TradesExecuted: 1},
		{ID: "d3", RunID: "run-1", BotID: "beta", Day: monday, Equity: decimal.NewFromInt(980), Cash: decimal.NewFromInt(980)},
	}
	for _, d := range rows {
		if err := daily.Insert(ctx, d); err != nil {
			t.Fatalf("Insert daily failed: %v", err)
		}
	}

	sell := &domain.Order{ID: "o1", RunID: "run-1", BotID: "alpha", Seq: 2,
		TransactionType: domain.TransactionSell, Status: domain.OrderStatusDone, RealizedPnL: decimal.NewFromInt(100)}
	if err := orders.InsertBulk(ctx, []*domain.Order{sell}); err != nil {
		t.Fatalf("Insert orders failed: %v", err)
	}

	return NewGenerator(runs, configs, daily, orders).WithClock(func() time.Time { return fixedNow })
}

func TestGenerator_Generate(t *testing.T) {
	report, err := setupTestData(t).Generate(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !report.GeneratedAt.Equal(fixedNow) {
		t.Errorf("expected injected clock, got %v", report.GeneratedAt)
	}
	if len(report.Bots) != 2 {
		t.Fatalf("expected 2 bots, got %d", len(report.Bots))
	}
	if report.Bots[0].BotID != "alpha" {
		t.Errorf("expected bots sorted by id, got %s first", report.Bots[0].BotID)
	}
	if report.Best != "alpha" {
		t.Errorf("expected alpha to be best, got %s", report.Best)
	}
	if report.Bots[0].TotalProfit != 100 {
		t.Errorf("expected profit 100, got %f", report.Bots[0].TotalProfit)
	}
	if report.Bots[0].WinRate != 1 {
		t.Errorf("expected win rate 1, got %f", report.Bots[0].WinRate)
	}
	if len(report.Daily) != 3 {
		t.Errorf("expected 3 daily rows, got %d", len(report.Daily))
	}
}

func TestGenerator_UnknownRun(t *testing.T) {
	if _, err := setupTestData(t).Generate(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestRenderCSV(t *testing.T) {
	report, err := setupTestData(t).Generate(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	out := RenderCSV(report.Bots)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "bot_id,bot_name,initial_equity") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], `alpha,"Alpha, Inc",1000.00,1100.00,100.00`) {
		t.Errorf("unexpected alpha row: %s", lines[1])
	}

	daily := RenderDailyCSV(report.Daily)
	if !strings.Contains(daily, "alpha,2024-03-04,1050.00,500.00,0.00,1") {
		t.Errorf("unexpected daily csv:\n%s", daily)
	}
}

func TestRenderMarkdown(t *testing.T) {
	report, err := setupTestData(t).Generate(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	md := RenderMarkdown(report)

	for _, want := range []string{
		"# Simulation Report: march",
		"Generated: 2024-04-01T12:00:00Z",
		"| Symbols | AAPL, MSFT |",
		"| Date Range | 2024-03-04 to 2024-03-05 |",
		"Best bot by total profit: **alpha**",
		"## Daily Equity",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(md, "## Unfilled Orders") {
		t.Error("unfilled orders section should be omitted when empty")
	}
}
