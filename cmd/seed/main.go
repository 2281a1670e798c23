// Package main loads historical bars and ticks from CSV into ClickHouse.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"stock-bot-lab/internal/app"
	"stock-bot-lab/internal/config"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/logger"
	"stock-bot-lab/internal/marketdata"
	"stock-bot-lab/internal/storage"
)

// batchSize bounds one ClickHouse insert.
const batchSize = 10000

func main() {
	configPath := flag.String("config", os.Getenv("SBL_CONFIG"), "Path to config YAML (optional)")
	barsPath := flag.String("bars", "", "CSV of bars: symbol,timestamp,open,high,low,close,volume")
	ticksPath := flag.String("ticks", "", "CSV of ticks: symbol,timestamp,price,volume")
	interval := flag.String("interval", domain.Interval1Min, "Interval of the bars file")
	flag.Parse()

	if *barsPath == "" && *ticksPath == "" {
		fmt.Fprintln(os.Stderr, "--bars or --ticks is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.UseMemory {
		fmt.Fprintln(os.Stderr, "seeding needs storage.use_memory=false and a clickhouse dsn")
		os.Exit(2)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	stores, cleanup, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("open stores", zap.Error(err))
	}
	defer cleanup()

	if *barsPath != "" {
		bars, err := marketdata.ReadBarsFile(*barsPath, *interval)
		if err != nil {
			log.Fatal("read bars", zap.Error(err))
		}
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
		stored, skipped := insertBatches(len(bars), func(lo, hi int) error {
			return stores.Bars.InsertBulk(ctx, bars[lo:hi])
		}, log)
		log.Info("bars seeded", zap.Int("stored", stored), zap.Int("skipped", skipped))
	}

	if *ticksPath != "" {
		ticks, err := marketdata.ReadTicksFile(*ticksPath)
		if err != nil {
			log.Fatal("read ticks", zap.Error(err))
		}
		sort.Slice(ticks, func(i, j int) bool { return ticks[i].Timestamp.Before(ticks[j].Timestamp) })
		stored, skipped := insertBatches(len(ticks), func(lo, hi int) error {
			return stores.Ticks.InsertBulk(ctx, ticks[lo:hi])
		}, log)
		log.Info("ticks seeded", zap.Int("stored", stored), zap.Int("skipped", skipped))
	}
}

// insertBatches inserts [0,n) in batches. A batch overlapping stored rows is
// skipped as a whole, so reseeding the same file is a no-op.
func insertBatches(n int, insert func(lo, hi int) error, log *zap.Logger) (stored, skipped int) {
	for lo := 0; lo < n; lo += batchSize {
		hi := min(lo+batchSize, n)
		err := insert(lo, hi)
		switch {
		case err == nil:
			stored += hi - lo
		case errors.Is(err, storage.ErrDuplicateKey):
			skipped += hi - lo
		default:
			log.Fatal("insert batch", zap.Int("offset", lo), zap.Error(err))
		}
	}
	return stored, skipped
}
