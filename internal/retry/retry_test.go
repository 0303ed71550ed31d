package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var errTransient = errors.New("connection reset")
var errFatal = errors.New("permission denied")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestBackoff_SucceedsAfterRetries(t *testing.T) {
	b := New("test-op", Policy{Start: time.Millisecond, Factor: 2, Ceiling: 10 * time.Millisecond, Budget: time.Second}, isTransient, zerolog.Nop())

	attempts := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestBackoff_NonTransientErrorPropagatesImmediately(t *testing.T) {
	b := New("test-op", Policy{Start: time.Millisecond, Factor: 2, Ceiling: 10 * time.Millisecond, Budget: time.Second}, isTransient, zerolog.Nop())

	attempts := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-transient error, got %d", attempts)
	}
}

func TestBackoff_ExhaustsBudgetAndReraises(t *testing.T) {
	b := New("test-op", Policy{Start: 5 * time.Millisecond, Factor: 2, Ceiling: 10 * time.Millisecond, Budget: 30 * time.Millisecond}, isTransient, zerolog.Nop())

	start := time.Now()
	attempts := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errTransient
	})
	elapsed := time.Since(start)

	if !errors.Is(err, errTransient) {
		t.Fatalf("expected the underlying error re-raised, got %v", err)
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts before exhaustion, got %d", attempts)
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("expected retries bounded by budget, took %v", elapsed)
	}
}

func TestBackoff_ContextCancellationStopsRetries(t *testing.T) {
	b := New("test-op", Policy{Start: 50 * time.Millisecond, Factor: 2, Ceiling: time.Second, Budget: time.Minute}, isTransient, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := b.Do(ctx, func(ctx context.Context) error {
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
