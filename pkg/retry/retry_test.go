package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryRecoversAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(4), func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		return errFlaky
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, errFlaky) {
		t.Errorf("error does not wrap the last failure: %v", err)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	marker := errors.New("bad credentials")
	calls := 0
	err := Retry(context.Background(), fastConfig(5), func() error {
		calls++
		return Permanent(marker)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for a permanent error", calls)
	}
	if !errors.Is(err, marker) {
		t.Errorf("error lost the permanent cause: %v", err)
	}
}

func TestPermanentNilIsNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should stay nil")
	}
}

func TestRetryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastConfig(3), func() error {
		calls++
		return errFlaky
	})
	if calls != 0 {
		t.Errorf("calls = %d, want 0 with a cancelled context", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error does not report cancellation: %v", err)
	}
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
		Multiplier:   1.0,
	}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			calls++
			return errFlaky
		})
	}()

	// Let the first attempt fail, then cancel during the long pause.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error does not report cancellation: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry never returned after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errFlaky
		}
		return "ready", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ready" {
		t.Errorf("result = %q, want %q", got, "ready")
	}
}

func TestRetryWithResultZeroOnFailure(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastConfig(2), func() (int, error) {
		return 42, errFlaky
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got != 0 {
		t.Errorf("result = %d, want the zero value on failure", got)
	}
}

func TestRetryZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0
	Retry(context.Background(), Config{}, func() error {
		calls++
		return errFlaky
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestJitterStaysInRange(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := jittered(base, true)
		if d < base/2 || d > base {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, base/2, base)
		}
	}
	if d := jittered(base, false); d != base {
		t.Errorf("jitter disabled should return the base delay, got %v", d)
	}
}
