package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"foodledger/pkg/logger"
)

type fakeRelay struct {
	mu       sync.Mutex
	batches  []int
	err      error
	calls    int
	dlqCalls int
}

func (f *fakeRelay) ProcessBatch(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakeRelay) MoveToDLQ(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlqCalls++
	return 1, nil
}

type fakeSweeper struct {
	mu     sync.Mutex
	limits []int
}

func (f *fakeSweeper) ReleaseExpired(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	return 2, nil
}

func TestDrainOutbox_StopsOnEmptyBatch(t *testing.T) {
	relay := &fakeRelay{batches: []int{100, 100, 7}}
	w := NewWorker(relay, &fakeSweeper{}, WorkerConfig{}, logger.NewNop())

	w.drainOutbox(context.Background())

	// Three full or partial batches, then the empty one ends the drain.
	assert.Equal(t, 4, relay.calls)
}

func TestDrainOutbox_StopsOnError(t *testing.T) {
	relay := &fakeRelay{err: errors.New("conn refused")}
	w := NewWorker(relay, &fakeSweeper{}, WorkerConfig{}, logger.NewNop())

	w.drainOutbox(context.Background())

	assert.Equal(t, 1, relay.calls)
}

func TestSweepReservations_PassesBatchSize(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := NewWorker(&fakeRelay{}, sweeper, WorkerConfig{SweepBatch: 25}, logger.NewNop())

	w.sweepReservations(context.Background())

	assert.Equal(t, []int{25}, sweeper.limits)
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	relay := &fakeRelay{}
	sweeper := &fakeSweeper{}
	w := NewWorker(relay, sweeper, WorkerConfig{
		OutboxInterval: 5 * time.Millisecond,
		SweepInterval:  5 * time.Millisecond,
		SweepBatch:     10,
		DLQInterval:    5 * time.Millisecond,
	}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		sweeper.mu.Lock()
		defer sweeper.mu.Unlock()
		return len(sweeper.limits) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
