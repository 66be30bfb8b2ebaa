package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastOptions(attempts int) Options {
	return Options{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Exponential: true,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastOptions(5), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("result = %q, want ok", result)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastOptions(3), func() (int, error) {
		calls++
		return 0, errors.New("always failing")
	})
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, fastOptions(10), func() (int, error) {
		calls++
		return 0, errors.New("failing")
	})
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
	if calls > 1 {
		t.Fatalf("calls = %d, want at most 1 after cancellation", calls)
	}
}

func TestDoLinearBackoff(t *testing.T) {
	opts := Options{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	calls := 0
	result, err := Do(context.Background(), opts, func() (bool, error) {
		calls++
		if calls == 1 {
			return false, errors.New("once")
		}
		return true, nil
	})
	if err != nil || !result {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
}
