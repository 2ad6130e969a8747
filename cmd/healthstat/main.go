package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/healthstat/internal/analysis"
	"github.com/seantiz/healthstat/internal/api"
	"github.com/seantiz/healthstat/internal/config"
	"github.com/seantiz/healthstat/internal/engine"
	"github.com/seantiz/healthstat/internal/model"
	"github.com/seantiz/healthstat/internal/notify"
	"github.com/seantiz/healthstat/internal/retention"
	"github.com/seantiz/healthstat/internal/store"
)

const drainTimeout = 60 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("healthstat: %v", err)
	}
}

func run() error {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out, closeLog, err := config.LogOutput(os.Stdout, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()
	logger := config.NewLogger(out, cfg.LogLevel)

	runID := model.NewRunID()
	logger.Info("healthstat: starting",
		"listen_addr", cfg.ListenAddr,
		"dataset", cfg.DatasetPath,
		"workers", cfg.Workers,
		"store", cfg.StoreBackend,
		"run_id", runID,
	)

	ds, err := analysis.LoadDataset(cfg.DatasetPath)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded", "rows", ds.Len(), "states", len(ds.States()))

	reg := analysis.NewRegistry()
	analysis.RegisterBuiltins(reg, analysis.NewIngestor(ds))

	results, err := store.Open(store.Options{
		Backend:    cfg.StoreBackend,
		ResultsDir: cfg.ResultsDir,
		DBPath:     cfg.DBPath,
		RedisURL:   cfg.RedisURL,
	})
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer results.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lastID, err := results.LastJobID(ctx)
	if err != nil {
		return fmt.Errorf("read last job id: %w", err)
	}

	opts := []engine.Option{
		engine.WithWorkers(cfg.Workers),
		engine.WithIDOffset(lastID),
		engine.WithRunID(runID),
		engine.WithLogger(logger),
	}

	if cfg.NATSURL != "" {
		pub, err := notify.Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer pub.Close()
		opts = append(opts, engine.WithPublisher(pub))
		logger.Info("publishing job outcomes", "nats_url", cfg.NATSURL, "subject", cfg.NATSSubject)
	}

	if cfg.Retention() > 0 {
		sweeper, err := retention.NewSweeper(results, cfg.Retention(), cfg.SweepInterval, logger)
		if err != nil {
			return fmt.Errorf("retention sweeper: %w", err)
		}
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("start retention sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	pool := engine.NewPool(reg, results, opts...)
	srv := api.NewServer(cfg.ListenAddr, pool, reg, results, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("draining worker pool", "queued", pool.QueueLen())
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := pool.Shutdown(drainCtx); err != nil {
			logger.Error("worker pool did not drain", "error", err)
			return err
		}
		logger.Info("worker pool stopped")
		return nil
	})

	return g.Wait()
}
