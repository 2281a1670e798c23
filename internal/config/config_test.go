package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stock-bot-lab/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Storage.UseMemory {
		t.Error("expected memory storage by default")
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Simulation.MaxConcurrentBots != 4 {
		t.Errorf("expected 4 concurrent bots, got %d", cfg.Simulation.MaxConcurrentBots)
	}
	if cfg.Simulation.SourceTimeout != 2*time.Second {
		t.Errorf("expected 2s source timeout, got %v", cfg.Simulation.SourceTimeout)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("expected 24h ttl, got %v", cfg.Redis.TTL)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http_addr: ":9000"
storage:
  use_memory: false
postgres:
  dsn: postgres://file
clickhouse:
  dsn: clickhouse://localhost:9000/stocks
simulation:
  max_concurrent_bots: 8
`)
	t.Setenv("SBL_POSTGRES_DSN", "postgres://env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("expected :9000, got %s", cfg.Server.HTTPAddr)
	}
	if cfg.Postgres.DSN != "postgres://env" {
		t.Errorf("expected env override, got %s", cfg.Postgres.DSN)
	}
	if cfg.Simulation.MaxConcurrentBots != 8 {
		t.Errorf("expected 8, got %d", cfg.Simulation.MaxConcurrentBots)
	}
}

func TestLoad_RequiresDSNsWithoutMemory(t *testing.T) {
	t.Setenv("SBL_STORAGE_USE_MEMORY", "false")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without DSNs")
	}
}

const simulationYAML = `
name: momentum vs rules
start_date: "2024-03-04"
end_date: "2024-03-08"
symbols: [AAPL, MSFT]
bots:
  - id: momentum
    budget:
      cash: 10000
      positions:
        - symbol: AAPL
          quantity: 5
          price: "180.25"
          acquired_at: "2024-02-01"
    symbols: [AAPL, MSFT]
    risk:
      risk_per_trade_pct: 25
      stop_loss_pct: 5
      max_daily_trades: 4
      max_daily_loss: 300
    sources:
      - id: rsi
        kind: indicator
        indicator: rsi
        params:
          period: 14
      - id: news
        kind: news
        endpoint: http://localhost:9999/predict
        enabled: false
    persistence:
      mode: tick_count
      value: 2
  - id: rules
    budget:
      cash: "5000.50"
    symbols: [MSFT]
    risk_score_threshold: 60
    sources:
      - id: rsi
        kind: indicator
        indicator: rsi
    aggregation:
      method: custom_rule
      rules:
        buy:
          op: lt
          source: rsi
          field: value
          number: 30
`

func TestLoadSimulation_Build(t *testing.T) {
	spec, err := LoadSimulation(writeFile(t, "sim.yaml", simulationYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	req, err := spec.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !req.StartDate.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start date %v", req.StartDate)
	}
	if req.Interval != domain.Interval1Min {
		t.Errorf("expected default interval, got %s", req.Interval)
	}
	if len(req.Bots) != 2 {
		t.Fatalf("expected 2 bots, got %d", len(req.Bots))
	}

	momentum := req.Bots[0]
	if !momentum.Budget.Cash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("unexpected cash %s", momentum.Budget.Cash)
	}
	if len(momentum.Budget.Positions) != 1 || !momentum.Budget.Positions[0].Price.Equal(decimal.RequireFromString("180.25")) {
		t.Errorf("unexpected positions %+v", momentum.Budget.Positions)
	}
	if momentum.Aggregation.Name() != domain.AggregationWeightedAverage {
		t.Errorf("expected weighted_average default, got %s", momentum.Aggregation.Name())
	}
	if momentum.RiskScoreThreshold != DefaultRiskScoreThreshold {
		t.Errorf("expected default threshold, got %v", momentum.RiskScoreThreshold)
	}
	if len(momentum.EnabledSources()) != 1 {
		t.Errorf("expected the news source to be disabled, got %+v", momentum.EnabledSources())
	}
	if got := momentum.Sources[0].Param("period", 0); got != 14 {
		t.Errorf("expected period 14, got %v", got)
	}
	if momentum.Persistence.Mode != domain.PersistenceTickCount {
		t.Errorf("unexpected persistence %+v", momentum.Persistence)
	}

	rules := req.Bots[1]
	cr, ok := rules.Aggregation.(domain.CustomRule)
	if !ok {
		t.Fatalf("expected custom rule, got %T", rules.Aggregation)
	}
	if cr.Rules.Buy == nil || cr.Rules.Buy.Number == nil || *cr.Rules.Buy.Number != 30 {
		t.Errorf("unexpected buy rule %+v", cr.Rules.Buy)
	}
	if rules.RiskScoreThreshold != 60 {
		t.Errorf("expected threshold 60, got %v", rules.RiskScoreThreshold)
	}
	if !rules.Budget.Cash.Equal(decimal.RequireFromString("5000.50")) {
		t.Errorf("unexpected cash %s", rules.Budget.Cash)
	}
}

func TestSimulationSpec_BuildErrors(t *testing.T) {
	base := func() SimulationSpec {
		return SimulationSpec{
			StartDate: "2024-03-04",
			EndDate:   "2024-03-05",
			Bots: []BotSpec{{
				ID:      "b",
				Budget:  BudgetSpec{Cash: "1000"},
				Symbols: []string{"AAPL"},
				Sources: []SourceSpec{{ID: "rsi", Kind: "indicator", Indicator: "rsi"}},
			}},
		}
	}

	if _, err := base().Build(); err != nil {
		t.Fatalf("base spec should build: %v", err)
	}

	cases := map[string]func(*SimulationSpec){
		"bad date":          func(s *SimulationSpec) { s.StartDate = "03/04/2024" },
		"missing end":       func(s *SimulationSpec) { s.EndDate = "" },
		"weekend only":      func(s *SimulationSpec) { s.StartDate, s.EndDate = "2024-03-09", "2024-03-10" },
		"unknown method":    func(s *SimulationSpec) { s.Bots[0].Aggregation.Method = "majority" },
		"custom no rules":   func(s *SimulationSpec) { s.Bots[0].Aggregation.Method = domain.AggregationCustomRule },
		"bad cash":          func(s *SimulationSpec) { s.Bots[0].Budget.Cash = "ten" },
		"unknown kind":      func(s *SimulationSpec) { s.Bots[0].Sources[0].Kind = "astrology" },
		"bad persistence":   func(s *SimulationSpec) { s.Bots[0].Persistence.Mode = "forever" },
		"duplicate bot ids": func(s *SimulationSpec) { s.Bots = append(s.Bots, s.Bots[0]) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := base()
			mutate(&spec)
			_, err := spec.Build()
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var b BudgetSpec
	if err := json.Unmarshal([]byte(`{"cash": 1500.25}`), &b); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if b.Cash != "1500.25" {
		t.Errorf("expected 1500.25, got %q", b.Cash)
	}
	if err := json.Unmarshal([]byte(`{"cash": "42"}`), &b); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	d, err := b.Cash.Decimal()
	if err != nil || !d.Equal(decimal.NewFromInt(42)) {
		t.Errorf("expected 42, got %s (%v)", d, err)
	}
}
