package modem_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"i4.energy/across/catmgw/modem"
)

func TestCorrelator(t *testing.T) {
	t.Run("OK resolves with empty payload", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("OK")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		if !c.OnLine("OK") {
			t.Error("expected OK to be consumed")
		}

		payload, err := w.Wait(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}
		if payload != "" {
			t.Errorf("expected empty payload, got %q", payload)
		}
		if c.Pending() {
			t.Error("correlator should be idle after the wait resolved")
		}
	})

	t.Run("Registration payload is captured", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("+CEREG:")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		c.OnLine("+CTZE: \"+08\",0")
		c.OnLine("+CEREG: 1,1")

		payload, err := w.Wait(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}
		if payload != " 1,1" {
			t.Errorf("expected payload %q, got %q", " 1,1", payload)
		}
	})

	t.Run("ErrTimeout when nothing matches", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("OK")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		if c.OnLine("+QCSQ: \"NOSERVICE\"") {
			t.Error("unrelated line should not be consumed")
		}

		_, err = w.Wait(context.Background(), 20*time.Millisecond)
		if !errors.Is(err, modem.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got: %v", err)
		}
		if c.Pending() {
			t.Error("correlator should be idle after a timeout")
		}
	})

	t.Run("ErrWaitPending for a second expectation", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("OK")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}
		defer w.Cancel()

		if _, err := c.Expect("CONNECT"); !errors.Is(err, modem.ErrWaitPending) {
			t.Errorf("expected ErrWaitPending, got: %v", err)
		}
	})

	t.Run("Prefix sequence resolves on the last prefix", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("OK", "+QHTTPPOST:")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		// The response prefix seen before OK does not count.
		c.OnLine("+QHTTPPOST: 1,500")
		c.OnLine("OK")
		c.OnLine("+QHTTPPOST: 0,200,57")

		payload, err := w.Wait(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}
		if payload != " 0,200,57" {
			t.Errorf("expected payload %q, got %q", " 0,200,57", payload)
		}
	})

	t.Run("Closing OK keeps the informational payload", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("+CEREG:", "OK")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		c.OnLine("+CEREG: 1,2")
		if !c.Pending() {
			t.Fatal("wait should still be pending before the closing OK")
		}
		c.OnLine("OK")

		payload, err := w.Wait(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}
		if payload != " 1,2" {
			t.Errorf("expected payload %q, got %q", " 1,2", payload)
		}
	})

	t.Run("ErrCommandFailed on ERROR", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("OK")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		c.OnLine("+CME ERROR: 703")

		_, err = w.Wait(context.Background(), time.Second)
		if !errors.Is(err, modem.ErrCommandFailed) {
			t.Errorf("expected ErrCommandFailed, got: %v", err)
		}
	})

	t.Run("ErrPayloadTooLarge when the suffix exceeds the capacity", func(t *testing.T) {
		c := modem.NewCorrelator(4)
		w, err := c.Expect("+QCCID:")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		c.OnLine("+QCCID: 89860000000000000000")

		_, err = w.Wait(context.Background(), time.Second)
		if !errors.Is(err, modem.ErrPayloadTooLarge) {
			t.Errorf("expected ErrPayloadTooLarge, got: %v", err)
		}
	})

	t.Run("Lines without a pending wait are not consumed", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		if c.OnLine("OK") {
			t.Error("idle correlator should not consume lines")
		}
	})

	t.Run("Context cancellation ends the wait", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.WaitFor(ctx, time.Minute, "APP RDY")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
		if c.Pending() {
			t.Error("correlator should be idle after cancellation")
		}
	})

	t.Run("Waiter is woken from another goroutine", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("APP RDY")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		go func() {
			time.Sleep(10 * time.Millisecond)
			c.OnLine("RDY")
			c.OnLine("APP RDY")
		}()

		if _, err := w.Wait(context.Background(), time.Second); err != nil {
			t.Errorf("unexpected error from Wait(): %v", err)
		}
	})

	t.Run("Match wins over an expired timer", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("+CEREG:")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}
		c.OnLine("+CEREG: 1,1")

		// Both the result and the zero timer are ready when Wait selects.
		payload, err := w.Wait(context.Background(), 0)
		if err != nil {
			t.Fatalf("unexpected error from Wait(): %v", err)
		}
		if payload != " 1,1" {
			t.Errorf("expected payload %q, got %q", " 1,1", payload)
		}
	})

	t.Run("Match wins over a cancelled context", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("OK")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}
		c.OnLine("OK")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := w.Wait(ctx, time.Minute); err != nil {
			t.Errorf("unexpected error from Wait(): %v", err)
		}
	})

	t.Run("Expired wait ignores a late line", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("OK")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}
		if _, err := w.Wait(context.Background(), time.Millisecond); !errors.Is(err, modem.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}
		if c.OnLine("OK") {
			t.Error("late OK should not be consumed")
		}
	})

	t.Run("Stop fails the pending wait and later expectations", func(t *testing.T) {
		c := modem.NewCorrelator(0)
		w, err := c.Expect("+CEREG:", "OK")
		if err != nil {
			t.Fatalf("unexpected error from Expect(): %v", err)
		}

		c.Stop(fmt.Errorf("%w: %w", modem.ErrLoopStopped, io.EOF))
		c.Stop(errors.New("ignored"))

		_, err = w.Wait(context.Background(), time.Minute)
		if !errors.Is(err, modem.ErrLoopStopped) || !errors.Is(err, io.EOF) {
			t.Errorf("expected ErrLoopStopped wrapping EOF, got: %v", err)
		}

		if _, err := c.Expect("OK"); !errors.Is(err, modem.ErrLoopStopped) {
			t.Errorf("expected ErrLoopStopped from Expect(), got: %v", err)
		}
		if c.Pending() {
			t.Error("stopped correlator should hold no wait")
		}
	})
}
