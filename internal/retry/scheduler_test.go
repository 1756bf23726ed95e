package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harvestly/cart-engine/pkg/config"
	pkgerrors "github.com/harvestly/cart-engine/pkg/errors"
)

func newTestScheduler(attempts int) *Scheduler {
	return New(config.RetryConfig{
		BaseDelay:   time.Millisecond,
		MaxDelay:    8 * time.Millisecond,
		MaxAttempts: attempts,
	}, nil)
}

func TestDoStopsAfterExactBudget(t *testing.T) {
	sched := newTestScheduler(3)

	calls := 0
	err := sched.Do(context.Background(), "p1", func(context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeDependency, "503")
	})

	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	if err == nil || !strings.Contains(err.Error(), "retry budget exhausted") {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if pkgerrors.As(err) == nil {
		t.Fatalf("expected the final typed error to remain unwrappable, got %v", err)
	}
}

func TestDoStopsEarlyOnSuccess(t *testing.T) {
	sched := newTestScheduler(3)

	calls := 0
	err := sched.Do(context.Background(), "p1", func(context.Context) error {
		calls++
		if calls < 2 {
			return pkgerrors.New(pkgerrors.CodeTimeout, "timeout")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestDoStopsImmediatelyOnPermanentError(t *testing.T) {
	sched := newTestScheduler(3)

	permanent := pkgerrors.New(pkgerrors.CodeStockConflict, "sold out")
	calls := 0
	err := sched.Do(context.Background(), "p1", func(context.Context) error {
		calls++
		return permanent
	})

	if calls != 1 {
		t.Fatalf("expected a single attempt for a permanent failure, got %d", calls)
	}
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
}

func TestDelayMonotonicUpToCap(t *testing.T) {
	sched := New(config.RetryConfig{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    400 * time.Millisecond,
		MaxAttempts: 5,
	}, nil)

	floors := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond, // capped
	}

	var prevFloor time.Duration
	for attempt, floor := range floors {
		delay := sched.Delay(attempt)
		if delay < floor {
			t.Fatalf("attempt %d: delay %v below floor %v", attempt, delay, floor)
		}
		ceiling := floor + time.Duration(float64(floor)*jitterRatio)
		if delay > ceiling {
			t.Fatalf("attempt %d: delay %v above jitter ceiling %v", attempt, delay, ceiling)
		}
		if floor < prevFloor {
			t.Fatalf("attempt %d: floor regressed", attempt)
		}
		prevFloor = floor
	}
}

func TestCancelAbortsPendingTask(t *testing.T) {
	sched := New(config.RetryConfig{
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    time.Second,
		MaxAttempts: 3,
	}, nil)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- sched.Do(context.Background(), "p1", func(context.Context) error {
			return pkgerrors.New(pkgerrors.CodeDependency, "503")
		})
	}()

	<-started
	time.Sleep(10 * time.Millisecond) // let Do register and start its first sleep
	sched.Cancel("p1")

	select {
	case err := <-done:
		if !errors.Is(err, ErrCanceled) {
			t.Fatalf("expected ErrCanceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after Cancel")
	}
}

func TestCancelIsScopedToKey(t *testing.T) {
	sched := newTestScheduler(2)

	done := make(chan error, 1)
	go func() {
		done <- sched.Do(context.Background(), "p2", func(context.Context) error {
			return nil
		})
	}()

	sched.Cancel("p1") // unrelated key

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected unrelated task to succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return")
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	sched := New(config.RetryConfig{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    time.Second,
		MaxAttempts: 3,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sched.Do(ctx, "p1", func(context.Context) error {
		t.Fatal("fn must not run once the context is gone")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
