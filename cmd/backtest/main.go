package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"stock-bot-lab/internal/app"
	"stock-bot-lab/internal/config"
	"stock-bot-lab/internal/logger"
	"stock-bot-lab/internal/marketdata"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/orchestrator"
	"stock-bot-lab/internal/reporting"
	"stock-bot-lab/internal/storage"
	"stock-bot-lab/internal/verification"
)

func main() {
	configPath := flag.String("config", os.Getenv("SBL_CONFIG"), "Path to config YAML (optional)")
	specPath := flag.String("spec", "", "Simulation spec file, YAML or JSON (required)")
	barsPath := flag.String("bars", "", "CSV of bars to load before running")
	ticksPath := flag.String("ticks", "", "CSV of ticks to load before running")
	format := flag.String("format", "table", "Output: table, json, csv, markdown")
	verify := flag.Bool("verify", false, "Rerun the simulation and check both runs match")
	flag.Parse()

	if *specPath == "" {
		fmt.Fprintln(os.Stderr, "--spec is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *specPath, *barsPath, *ticksPath, *format, *verify); err != nil {
		log.Error("backtest failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, specPath, barsPath, ticksPath, format string, verify bool) error {
	spec, err := config.LoadSimulation(specPath)
	if err != nil {
		return err
	}
	req, err := spec.Build()
	if err != nil {
		return err
	}

	stores, cleanup, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := load(ctx, stores, log, barsPath, ticksPath, req.Interval); err != nil {
		return err
	}

	manager := app.NewManager(cfg, stores, log, observability.DefaultMetrics)
	defer func() { _ = manager.Shutdown(context.Background()) }()

	runID, err := manager.CreateSimulation(ctx, req)
	if err != nil {
		return err
	}
	log.Info("simulation started", zap.String("run_id", runID), zap.Int("bots", len(req.Bots)))

	if updates, stopUpdates, err := manager.Subscribe(ctx, runID); err == nil {
		go func() {
			defer stopUpdates()
			for p := range updates {
				log.Info("progress",
					zap.String("status", string(p.Status)),
					zap.Float64("progress", p.Progress),
					zap.Int("days_completed", p.DaysCompleted),
					zap.Int("total_days", p.TotalDays),
				)
			}
		}()
	}

	if err := manager.Wait(ctx, runID); err != nil {
		if errors.Is(err, context.Canceled) {
			_ = manager.Cancel(context.Background(), runID)
		}
		return err
	}

	results, err := manager.GetResults(ctx, runID)
	if err != nil {
		return err
	}
	if err := render(ctx, os.Stdout, format, stores, results); err != nil {
		return err
	}
	if verify {
		return verifyRerun(ctx, manager, stores, log, runID)
	}
	return nil
}

// verifyRerun reruns runID and fails unless both runs stored identical results.
func verifyRerun(ctx context.Context, manager *orchestrator.Manager, stores *app.Stores, log *zap.Logger, runID string) error {
	rerunID, err := manager.Rerun(ctx, runID)
	if err != nil {
		return err
	}
	if err := manager.Wait(ctx, rerunID); err != nil {
		return err
	}
	report, err := verification.NewRunVerifier(stores.Daily, stores.Orders).Compare(ctx, runID, rerunID)
	if err != nil {
		return err
	}
	if !report.Match {
		for _, d := range report.DivergedDays {
			log.Warn("bot-day diverged", zap.String("bot_id", d.BotID), zap.Time("day", d.Day), zap.Any("fields", d.Divergences))
		}
		for _, o := range report.DivergedOrders {
			log.Warn("order diverged", zap.String("bot_id", o.BotID), zap.Int64("seq", o.Seq), zap.Any("fields", o.Divergences))
		}
		return fmt.Errorf("rerun %s diverged from %s: %d bot-days, %d orders",
			rerunID, runID, len(report.DivergedDays), len(report.DivergedOrders))
	}
	log.Info("rerun verified", zap.String("rerun_id", rerunID), zap.Int("bot_days", report.BotDays), zap.Int("orders", report.Orders))
	return nil
}

// load seeds market data. Rows already stored are skipped per batch.
func load(ctx context.Context, stores *app.Stores, log *zap.Logger, barsPath, ticksPath, interval string) error {
	if barsPath != "" {
		bars, err := marketdata.ReadBarsFile(barsPath, interval)
		if err != nil {
			return err
		}
		if err := stores.Bars.InsertBulk(ctx, bars); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store bars: %w", err)
		}
		log.Info("bars loaded", zap.Int("count", len(bars)))
	}
	if ticksPath != "" {
		ticks, err := marketdata.ReadTicksFile(ticksPath)
		if err != nil {
			return err
		}
		if err := stores.Ticks.InsertBulk(ctx, ticks); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("store ticks: %w", err)
		}
		log.Info("ticks loaded", zap.Int("count", len(ticks)))
	}
	return nil
}

func render(ctx context.Context, out *os.File, format string, stores *app.Stores, results *orchestrator.Results) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "csv":
		_, err := fmt.Fprint(out, reporting.RenderCSV(reporting.BotRows(results.Bots)))
		return err
	case "markdown":
		report, err := app.NewReports(stores).Generate(ctx, results.Run.ID)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, reporting.RenderMarkdown(report))
		return err
	case "table":
		fmt.Fprintf(out, "run %s: %s (%s to %s)\n\n", results.Run.ID, results.Run.Status,
			results.Run.StartDate.Format(config.DateLayout), results.Run.EndDate.Format(config.DateLayout))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "BOT\tFINAL EQUITY\tPROFIT\tRETURN %\tTRADES\tWIN RATE\tMAX DD\t")
		for _, r := range reporting.BotRows(results.Bots) {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%d\t%.2f\t%.2f\t\n",
				r.BotID, r.FinalEquity, r.TotalProfit, r.ReturnPct, r.TotalTrades, r.WinRate, r.MaxDrawdown)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
