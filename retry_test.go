package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"i4.energy/across/catmgw/gateway"
	"i4.energy/across/catmgw/modem"
)

func TestBackoffDelay(t *testing.T) {
	b := backoff{initial: time.Second, max: 5 * time.Second}
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, want := range expected {
		if got := b.delay(i + 1); got != want {
			t.Errorf("attempt %d: expected %v, got %v", i+1, want, got)
		}
	}

	if got := (backoff{initial: time.Second}).delay(4); got != 8*time.Second {
		t.Errorf("uncapped backoff: expected 8s, got %v", got)
	}
	if got := (backoff{initial: time.Second, max: time.Minute}).delay(1000); got != time.Minute {
		t.Errorf("long streak should stay at the cap, got %v", got)
	}
}

func TestRetry(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	b := backoff{initial: time.Millisecond, max: 2 * time.Millisecond}

	t.Run("Succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), logger, "test", b, func(context.Context) error {
			calls++
			if calls < 3 {
				return modem.ErrTimeout
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("Stops on permanent errors", func(t *testing.T) {
		for _, permanentErr := range []error{
			fmt.Errorf("bootstrap RegistrationPolling: %w", modem.ErrLoopStopped),
			modem.ErrAlreadyClosed,
			fmt.Errorf("%w: API key", gateway.ErrMissingSetting),
		} {
			calls := 0
			err := retry(context.Background(), logger, "test", b, func(context.Context) error {
				calls++
				return permanentErr
			})
			if !errors.Is(err, permanentErr) {
				t.Errorf("expected %v, got %v", permanentErr, err)
			}
			if calls != 1 {
				t.Errorf("%v: expected a single call, got %d", permanentErr, calls)
			}
		}
	})

	t.Run("Cancellation ends the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		start := time.Now()
		err := retry(ctx, logger, "test", backoff{initial: time.Hour}, func(context.Context) error {
			calls++
			cancel()
			return errors.New("no service")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected a single call, got %d", calls)
		}
		if time.Since(start) > time.Second {
			t.Error("retry kept waiting after cancellation")
		}
	})

	t.Run("Cancellation during the pause", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := retry(ctx, logger, "test", backoff{initial: time.Hour}, func(context.Context) error {
			return errors.New("no service")
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})
}
