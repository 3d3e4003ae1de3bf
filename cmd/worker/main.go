// Package main is the entry point for the ledger background worker: it relays
// outbox events to Redis and releases expired reservations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"foodledger/internal/app"
	"foodledger/internal/config"
	"foodledger/internal/infrastructure/broker"
	"foodledger/internal/infrastructure/storage/postgres"
	"foodledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Development: cfg.IsDevelopment(),
		Service:     "foodledger-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting foodledger worker")

	pool, err := postgres.NewPool(ctx, postgres.PoolConfigFrom(cfg.Postgres))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	redisClient, err := broker.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer func() { _ = redisClient.Close() }()

	ledger, err := app.NewLedger(pool, cfg.Postgres, cfg.Ledger)
	if err != nil {
		log.Fatalw("failed to build ledger", "error", err)
	}
	ledger.Settings.Start(ctx)
	defer ledger.Settings.Stop()

	relay := postgres.NewOutboxRelay(
		ledger.TxManager,
		cfg.Worker.OutboxBatchSize,
		broker.NewRedisPublisher(redisClient, cfg.Redis.EventsChannel),
	)

	worker := NewWorker(relay, ledger.Service, WorkerConfig{
		OutboxInterval: cfg.Worker.OutboxPollInterval,
		SweepInterval:  cfg.Worker.ReservationSweepInterval,
		SweepBatch:     cfg.Worker.ReservationSweepBatch,
	}, log)

	log.Infow("worker running",
		"outbox_interval", cfg.Worker.OutboxPollInterval,
		"sweep_interval", cfg.Worker.ReservationSweepInterval,
		"events_channel", cfg.Redis.EventsChannel,
	)
	worker.Run(ctx)

	log.Info("worker stopped")
}
