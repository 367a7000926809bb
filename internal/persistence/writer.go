package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type writeCmd struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue serialises background database writes off the read loop.
type WriterQueue struct {
	logger *slog.Logger
	queue  chan writeCmd
	wg     sync.WaitGroup
	done   chan struct{}
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if logger == nil {
		logger = slog.Default().With("component", "persistence")
	}
	if capacity <= 0 {
		capacity = 64
	}
	return &WriterQueue{
		logger: logger,
		queue:  make(chan writeCmd, capacity),
		done:   make(chan struct{}),
	}
}

func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	cmd := writeCmd{name: name, fn: fn}
	w.wg.Add(1)
	select {
	case w.queue <- cmd:
	default:
		go func() { w.queue <- cmd }()
	}
}

// Start runs queued writes until ctx is cancelled.
func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-w.queue:
				w.runWithRetry(ctx, cmd)
				w.wg.Done()
			}
		}
	}()
}

// Flush waits until every enqueued write has run or ctx expires.
func (w *WriterQueue) Flush(ctx context.Context) bool {
	flushed := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		return true
	case <-ctx.Done():
		w.logger.Warn("db writes still pending", "error", ctx.Err())
		return false
	}
}

func (w *WriterQueue) runWithRetry(ctx context.Context, cmd writeCmd) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := cmd.fn(ctx); err != nil {
			w.logger.Error("db write failed", "cmd", cmd.name, "attempt", attempt, "error", err)
			if attempt == maxAttempts {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return
	}
}
