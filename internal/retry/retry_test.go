package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	wantErr := errors.New("still broken")
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected final error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for permanent error, got %d", calls)
	}
}

func TestDo_RespectsContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastPolicy(3), func() error {
		return errors.New("transient")
	})
	if err == nil {
		t.Fatalf("expected error after cancellation")
	}
}
