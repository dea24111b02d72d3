package batch

import (
	"context"
	"sync"
	"time"
)

// FlushFunc writes one batch of items. Items are handed over in insertion
// order. A failed batch is put back and retried on the next trigger.
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Batcher buffers items and flushes them when the buffer reaches its size
// limit or the flush interval elapses, whichever comes first.
type Batcher[T any] struct {
	size     int
	interval time.Duration
	flushFn  FlushFunc[T]

	mu      sync.Mutex
	pending []T

	flushChan chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// New creates a batcher and starts its flush loop.
func New[T any](size int, interval time.Duration, flushFn FlushFunc[T]) *Batcher[T] {
	b := &Batcher[T]{
		size:      size,
		interval:  interval,
		flushFn:   flushFn,
		pending:   make([]T, 0, size),
		flushChan: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}

	go b.run()

	return b
}

// Add buffers an item, triggering an async flush when the buffer is full.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	b.pending = append(b.pending, item)
	shouldFlush := len(b.pending) >= b.size
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushChan <- struct{}{}:
		default:
		}
	}
}

// Flush synchronously writes all pending items.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}

	items := b.pending
	b.pending = make([]T, 0, b.size)
	b.mu.Unlock()

	if err := b.flushFn(ctx, items); err != nil {
		// Keep the rows for the next trigger.
		b.mu.Lock()
		b.pending = append(items, b.pending...)
		b.mu.Unlock()
		return err
	}
	return nil
}

// Drop discards all pending items without writing them.
func (b *Batcher[T]) Drop() {
	b.mu.Lock()
	b.pending = b.pending[:0]
	b.mu.Unlock()
}

// run flushes on the interval or when a full-buffer signal arrives.
func (b *Batcher[T]) run() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = b.Flush(context.Background())
		case <-b.flushChan:
			_ = b.Flush(context.Background())
		case <-b.stopChan:
			// Final flush on stop
			_ = b.Flush(context.Background())
			return
		}
	}
}

// Stop stops the flush loop after a final flush.
func (b *Batcher[T]) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
}

// Len returns the number of pending items.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
