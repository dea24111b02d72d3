package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]int
	err     error
}

func (s *recordingSink) flush(ctx context.Context, items []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	batch := make([]int, len(items))
	copy(batch, items)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *recordingSink) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBatcher_FlushesWhenFull(t *testing.T) {
	sink := &recordingSink{}
	b := New(3, time.Minute, sink.flush)
	defer b.Stop()

	b.Add(1)
	b.Add(2)
	if sink.batchCount() != 0 {
		t.Fatalf("Expected no flush below size limit, got %d batches", sink.batchCount())
	}

	b.Add(3)
	waitFor(t, func() bool { return sink.batchCount() == 1 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches[0]) != 3 {
		t.Errorf("Expected batch of 3, got %d", len(sink.batches[0]))
	}
	if sink.batches[0][0] != 1 || sink.batches[0][2] != 3 {
		t.Errorf("Expected insertion order preserved, got %v", sink.batches[0])
	}
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	sink := &recordingSink{}
	b := New(100, 20*time.Millisecond, sink.flush)
	defer b.Stop()

	b.Add(42)
	waitFor(t, func() bool { return sink.batchCount() == 1 })

	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after flush, got %d", b.Len())
	}
}

func TestBatcher_SyncFlush(t *testing.T) {
	sink := &recordingSink{}
	b := New(100, time.Minute, sink.flush)
	defer b.Stop()

	b.Add(1)
	b.Add(2)

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sink.batchCount() != 1 {
		t.Errorf("Expected 1 batch, got %d", sink.batchCount())
	}
	if b.Len() != 0 {
		t.Errorf("Expected empty buffer, got %d", b.Len())
	}
}

func TestBatcher_EmptyFlushIsNoop(t *testing.T) {
	sink := &recordingSink{}
	b := New(100, time.Minute, sink.flush)
	defer b.Stop()

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sink.batchCount() != 0 {
		t.Errorf("Expected no batches, got %d", sink.batchCount())
	}
}

func TestBatcher_FailedFlushKeepsItems(t *testing.T) {
	sink := &recordingSink{}
	sink.setErr(errors.New("sink down"))

	b := New(100, time.Minute, sink.flush)
	defer b.Stop()

	b.Add(1)
	b.Add(2)

	if err := b.Flush(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}
	if b.Len() != 2 {
		t.Fatalf("Expected items retained after failed flush, got %d", b.Len())
	}

	// Sink recovers; retried items keep their order.
	sink.setErr(nil)
	b.Add(3)
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.batches) != 1 || len(sink.batches[0]) != 3 {
		t.Fatalf("Expected one batch of 3, got %v", sink.batches)
	}
	if sink.batches[0][0] != 1 || sink.batches[0][1] != 2 || sink.batches[0][2] != 3 {
		t.Errorf("Expected retained items first, got %v", sink.batches[0])
	}
}

func TestBatcher_Drop(t *testing.T) {
	sink := &recordingSink{}
	b := New(100, time.Minute, sink.flush)
	defer b.Stop()

	b.Add(1)
	b.Drop()

	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after drop, got %d", b.Len())
	}
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sink.batchCount() != 0 {
		t.Errorf("Expected dropped items never flushed, got %d batches", sink.batchCount())
	}
}

func TestBatcher_StopFlushesRemaining(t *testing.T) {
	sink := &recordingSink{}
	b := New(100, time.Minute, sink.flush)

	b.Add(7)
	b.Stop()

	waitFor(t, func() bool { return sink.batchCount() == 1 })

	// Stop is idempotent.
	b.Stop()
}
