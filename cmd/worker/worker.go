package main

import (
	"context"
	"sync"
	"time"

	"foodledger/pkg/logger"
)

// outboxRelay delivers pending outbox messages.
type outboxRelay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

// reservationSweeper releases reservations past their expiry.
type reservationSweeper interface {
	ReleaseExpired(ctx context.Context, limit int) (int, error)
}

// WorkerConfig sets the loop intervals.
type WorkerConfig struct {
	OutboxInterval time.Duration
	SweepInterval  time.Duration
	SweepBatch     int
	DLQInterval    time.Duration
}

// Worker runs the background loops of the ledger.
type Worker struct {
	relay   outboxRelay
	sweeper reservationSweeper
	cfg     WorkerConfig
	log     *logger.Logger
}

func NewWorker(relay outboxRelay, sweeper reservationSweeper, cfg WorkerConfig, log *logger.Logger) *Worker {
	if cfg.DLQInterval <= 0 {
		cfg.DLQInterval = time.Hour
	}
	return &Worker{
		relay:   relay,
		sweeper: sweeper,
		cfg:     cfg,
		log:     log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled and every loop has returned.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"outbox", w.cfg.OutboxInterval, w.drainOutbox},
		{"reservation-sweep", w.cfg.SweepInterval, w.sweepReservations},
		{"outbox-dlq", w.cfg.DLQInterval, w.moveToDLQ},
	}
	for _, l := range loops {
		if l.interval <= 0 {
			w.log.Warnw("loop disabled", "loop", l.name)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx, l.interval, l.fn)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// drainOutbox processes batches until one comes back short.
func (w *Worker) drainOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("outbox batch processed", "count", n)
		}
		if n == 0 {
			return
		}
	}
}

func (w *Worker) sweepReservations(ctx context.Context) {
	n, err := w.sweeper.ReleaseExpired(ctx, w.cfg.SweepBatch)
	if err != nil {
		w.log.Errorw("reservation sweep failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("released expired reservations", "orders", n)
	}
}

func (w *Worker) moveToDLQ(ctx context.Context) {
	n, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("outbox dlq move failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Warnw("moved failed outbox messages to dlq", "count", n)
	}
}
