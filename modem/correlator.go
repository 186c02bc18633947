package modem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"i4.energy/across/catmgw/at"
)

// DefaultMaxPayload is the capacity for the part of a matched line that
// follows the expected prefix, e.g. " 1,1" for "+CEREG: 1,1".
const DefaultMaxPayload = 20

// Correlator matches lines delivered by the line reader against the single
// outstanding expectation and wakes the caller blocked in Wait.
//
// A Correlator is either idle or holds exactly one Wait. The wait is
// registered with Expect before the command is written so that a fast modem
// cannot answer before anyone listens.
type Correlator struct {
	mu         sync.Mutex
	pending    *Wait
	maxPayload int
	// stopped is set once no more lines will be delivered
	stopped error
}

// Wait is one registered expectation. It may span several prefixes that must
// be seen in order, e.g. "OK" followed by "+QHTTPPOST:", or "+CEREG:"
// followed by the closing "OK". The payload of the last prefix other than OK
// is returned.
type Wait struct {
	c        *Correlator
	prefixes []string
	stage    int
	payload  string
	resolved bool
	done     chan waitResult
}

type waitResult struct {
	payload string
	err     error
}

// NewCorrelator returns an idle correlator. A maxPayload of zero selects
// DefaultMaxPayload.
func NewCorrelator(maxPayload int) *Correlator {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Correlator{maxPayload: maxPayload}
}

// Expect registers the expectation and moves the correlator out of idle.
func (c *Correlator) Expect(prefixes ...string) (*Wait, error) {
	if len(prefixes) == 0 {
		return nil, errors.New("modem: expectation without prefix")
	}
	for _, p := range prefixes {
		if p == "" {
			return nil, errors.New("modem: empty expected prefix")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped != nil {
		return nil, c.stopped
	}
	if c.pending != nil {
		return nil, fmt.Errorf("%w: %q", ErrWaitPending, c.pending.prefixes)
	}
	w := &Wait{
		c:        c,
		prefixes: prefixes,
		done:     make(chan waitResult, 1),
	}
	c.pending = w
	return w, nil
}

// WaitFor registers the expectation and blocks until it resolves.
func (c *Correlator) WaitFor(ctx context.Context, timeout time.Duration, prefixes ...string) (string, error) {
	w, err := c.Expect(prefixes...)
	if err != nil {
		return "", err
	}
	return w.Wait(ctx, timeout)
}

// Stop fails the outstanding wait with err and rejects every later
// expectation with it. It is called when the line reader exits. Only the
// first call has an effect.
func (c *Correlator) Stop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped != nil {
		return
	}
	c.stopped = err
	if w := c.pending; w != nil && !w.resolved {
		w.resolve("", err)
	}
}

// Pending reports whether a wait is outstanding.
func (c *Correlator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// OnLine offers a received line to the outstanding wait. It never blocks and
// reports whether the line was consumed.
func (c *Correlator) OnLine(line string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.pending
	if w == nil || w.resolved {
		return false
	}

	prefix := w.prefixes[w.stage]
	if !strings.HasPrefix(line, prefix) {
		if at.IsFailure(line) {
			w.resolve("", fmt.Errorf("%w: %s while waiting for %q", ErrCommandFailed, line, prefix))
			return true
		}
		return false
	}

	w.stage++
	if prefix != at.OK {
		payload := line[len(prefix):]
		if len(payload) > c.maxPayload {
			w.resolve("", fmt.Errorf("%w: %d bytes after %q, capacity %d", ErrPayloadTooLarge, len(payload), prefix, c.maxPayload))
			return true
		}
		w.payload = payload
	}
	if w.stage < len(w.prefixes) {
		return true
	}
	w.resolve(w.payload, nil)
	return true
}

func (c *Correlator) release(w *Wait) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == w {
		c.pending = nil
	}
}

// Wait blocks until the expectation is met, the timeout elapses or ctx is
// done. The correlator is idle again when Wait returns.
func (w *Wait) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	defer w.c.release(w)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-w.done:
		return r.payload, r.err
	case <-timer.C:
		if r, ok := w.abandon(); ok {
			return r.payload, r.err
		}
		return "", fmt.Errorf("%w: no %q within %s", ErrTimeout, w.prefixes[min(w.stage, len(w.prefixes)-1)], timeout)
	case <-ctx.Done():
		if r, ok := w.abandon(); ok {
			return r.payload, r.err
		}
		return "", ctx.Err()
	}
}

// abandon stops the wait from matching further lines. A result that was
// delivered while the timer or ctx fired wins and is returned.
func (w *Wait) abandon() (waitResult, bool) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	if w.resolved {
		return <-w.done, true
	}
	w.resolved = true
	return waitResult{}, false
}

// Cancel abandons the expectation without waiting, e.g. when the command it
// belongs to could not be written.
func (w *Wait) Cancel() {
	w.c.release(w)
}

// resolve must be called with the correlator lock held.
func (w *Wait) resolve(payload string, err error) {
	w.resolved = true
	w.done <- waitResult{payload: payload, err: err}
}
