package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"i4.energy/across/catmgw/gateway"
	"i4.energy/across/catmgw/modem"
)

// backoff doubles the pause after every failed attempt, capped at max
type backoff struct {
	initial time.Duration
	max     time.Duration
}

func (b backoff) delay(attempt int) time.Duration {
	d := b.initial
	for i := 1; i < attempt; i++ {
		if b.max > 0 && d >= b.max/2 {
			return b.max
		}
		d *= 2
	}
	if b.max > 0 && d > b.max {
		return b.max
	}
	return d
}

// permanent reports whether retrying cannot help: the modem reader is gone,
// the modem was closed or the configuration is incomplete.
func permanent(err error) bool {
	return errors.Is(err, modem.ErrLoopStopped) ||
		errors.Is(err, modem.ErrAlreadyClosed) ||
		errors.Is(err, gateway.ErrMissingSetting)
}

// retry runs fn until it succeeds, fails permanently or ctx is cancelled
func retry(ctx context.Context, logger *slog.Logger, name string, b backoff, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if permanent(err) {
			return err
		}

		wait := b.delay(attempt)
		logger.Warn("Attempt failed, retrying", "operation", name, "attempt", attempt, "error", err, "next_retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// bringOnline bootstraps the modem unless that already happened, pings the
// configured host and runs the authorization flow.
func bringOnline(ctx context.Context, logger *slog.Logger, gw *gateway.Gateway) error {
	if !gw.State().Bootstrapped() {
		if err := gw.Bootstrap(ctx); err != nil {
			return err
		}
		if err := gw.Ping(ctx); err != nil {
			logger.Warn("Ping failed", "error", err)
		}
	}
	return gw.Connect(ctx)
}
