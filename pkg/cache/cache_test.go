package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetMissingKey(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	if _, ok := c.Get("absent"); ok {
		t.Error("empty cache reported a hit")
	}
}

func TestSetAndGet(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("k", 42)
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("stored key missing")
	}
	if got != 42 {
		t.Errorf("value = %v, want 42", got)
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.SetWithTTL("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry reported as a hit")
	}
}

func TestGetOrSetComputesOnce(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	calls := 0
	load := func(ctx context.Context) (interface{}, error) {
		calls++
		return "fresh", nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrSet(context.Background(), "k", load, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "fresh" {
			t.Errorf("value = %v, want fresh", got)
		}
	}
	if calls != 1 {
		t.Errorf("loader ran %d times, want 1", calls)
	}
}

func TestGetOrSetDoesNotCacheErrors(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	boom := errors.New("query failed")
	_, err := c.GetOrSet(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		return nil, boom
	}, time.Minute)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want the loader failure", err)
	}

	// The next call must hit the loader again.
	got, err := c.GetOrSet(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	}, time.Minute)
	if err != nil || got != "ok" {
		t.Errorf("recovery load = (%v, %v), want (ok, nil)", got, err)
	}
}

func TestDelete(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Stop()

	c.Set("k", 1)
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Error("deleted key still present")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := NewCache(time.Minute)
	c.Stop()
	c.Stop()

	// Still usable without the sweeper.
	c.Set("k", 1)
	if _, ok := c.Get("k"); !ok {
		t.Error("cache unusable after Stop")
	}
}
