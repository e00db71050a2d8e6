package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"linotype/internal/services"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	policy := services.RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	err := services.Retry(context.Background(), policy, func(context.Context) error {
		calls++
		if calls < 2 {
			return services.Wrap(services.ErrTransient, "convert", "post", "flaky", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	policy := services.RetryPolicy{Attempts: 5, Delay: time.Millisecond}
	marker := services.Wrap(services.ErrValidation, "convert", "post", "bad input", nil)
	err := services.Retry(context.Background(), policy, func(context.Context) error {
		calls++
		return marker
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single call for permanent error, got %d", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	policy := services.RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	err := services.Retry(context.Background(), policy, func(context.Context) error {
		calls++
		return services.Wrap(services.ErrTransient, "illustrate", "poll", "still pending", nil)
	})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := services.Retry(ctx, services.DefaultRetryPolicy, func(context.Context) error {
		t.Fatal("fn should not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
