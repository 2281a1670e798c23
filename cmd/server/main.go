// Package main runs the simulation service: the HTTP API, progress
// streaming, the optional status cache and the scheduled paper trader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stock-bot-lab/internal/api"
	"stock-bot-lab/internal/app"
	"stock-bot-lab/internal/cache"
	"stock-bot-lab/internal/config"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/logger"
	"stock-bot-lab/internal/observability"
	"stock-bot-lab/internal/papertrade"
	"stock-bot-lab/internal/simulation"
	"stock-bot-lab/internal/verification"
)

func main() {
	configPath := flag.String("config", os.Getenv("SBL_CONFIG"), "Path to config YAML (optional)")
	flag.Parse()

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

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	checks := map[string]api.Pinger{}
	if stores.Postgres != nil {
		checks["postgres"] = stores.Postgres
	}
	if stores.ClickHouse != nil {
		checks["clickhouse"] = stores.ClickHouse
	}

	var sinks []simulation.Sink
	if cfg.Redis.Enabled {
		rs := cache.NewRedisStore(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		checks["redis"] = rs
		sinks = append(sinks, cache.NewStatusCache(rs, cfg.Redis.TTL, log))
	}

	metrics := observability.DefaultMetrics
	manager := app.NewManager(cfg, stores, log, metrics, sinks...)

	var scheduler *papertrade.Scheduler
	if cfg.PaperTrading.Enabled {
		scheduler, err = startPaperTrading(ctx, cfg, stores, log, metrics)
		if err != nil {
			return err
		}
	}

	router := api.NewRouter(api.RouterOptions{
		Env: cfg.App.Env,
		Simulation: &api.SimulationHandler{
			Manager:  manager,
			Reports:  app.NewReports(stores),
			Verifier: verification.NewRunVerifier(stores.Daily, stores.Orders),
			Logger:   log,
		},
		Health: &api.HealthHandler{Checks: checks},
		Logger: log,
	})
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Warn("simulations did not stop in time", zap.Error(err))
	}
	return nil
}

func startPaperTrading(ctx context.Context, cfg config.Config, stores *app.Stores, log *zap.Logger, m *observability.Metrics) (*papertrade.Scheduler, error) {
	spec, err := config.LoadSimulation(cfg.PaperTrading.SpecFile)
	if err != nil {
		return nil, err
	}
	bots := make([]domain.BotConfig, 0, len(spec.Bots))
	for _, b := range spec.Bots {
		bot, err := b.Build()
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}

	trader, err := papertrade.New(papertrade.Options{
		Bots:            bots,
		Interval:        cfg.PaperTrading.Interval,
		PriceBarStore:   stores.Bars,
		TickResultStore: stores.TickResults,
		Sources:         app.SourceBuilder(cfg),
		HistoryWindow:   cfg.Simulation.HistoryWindow,
		Logger:          log.Named("paper"),
		Metrics:         m,
	})
	if err != nil {
		return nil, fmt.Errorf("paper trading: %w", err)
	}

	scheduler := papertrade.NewScheduler(log, ctx)
	if err := trader.Schedule(scheduler, cfg.PaperTrading.Schedule); err != nil {
		return nil, err
	}
	scheduler.Start()
	log.Info("paper trading enabled",
		zap.Int("bots", len(bots)),
		zap.String("schedule", cfg.PaperTrading.Schedule),
	)
	return scheduler, nil
}
