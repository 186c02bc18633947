package modem

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"i4.energy/across/catmgw/at"
)

// Modem is the session with a cellular modem driven through AT commands.
// It owns the transport, the response correlator and the last JSON document
// the modem printed, and issues one command at a time: every exchange
// registers its expectation, writes the frame and blocks until the
// expectation resolves.
//
// Lines are read by Loop, which must be running before any command is issued.
type Modem struct {
	// transport provides the physical connection to the modem (serial, TCP, etc.)
	transport Transport
	// config contains the modem configuration settings
	config Config
	// logger receives every line read from and frame written to the modem
	logger *slog.Logger
	// correlator holds the single outstanding response expectation
	correlator *Correlator

	// writeMu serializes writes to the transport
	writeMu sync.Mutex

	// mu guards the fields below
	mu sync.Mutex
	// closed indicates if the modem has been shut down
	closed bool
	// loopRunning indicates if the Loop is currently running
	loopRunning bool
	// loopCancel stops a running Loop
	loopCancel context.CancelFunc
	// stopErr is set when Loop has returned
	stopErr error
	// document is the last valid JSON line printed by the modem
	document json.RawMessage

	framesSent    metrics.Counter
	linesReceived metrics.Counter
	waitTimeouts  metrics.Counter
	waitFailures  metrics.Counter
}

// New creates a new Modem instance with the given configuration.
// It establishes the transport connection. Bringing the modem to a usable
// state is left to the caller because it depends on the network.
func New(ctx context.Context, config Config) (*Modem, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	r := config.Registry
	return &Modem{
		transport:     transport,
		config:        config,
		logger:        config.Logger,
		correlator:    NewCorrelator(config.MaxPayload),
		framesSent:    metrics.GetOrRegisterCounter("modem.frames.sent", r),
		linesReceived: metrics.GetOrRegisterCounter("modem.lines.received", r),
		waitTimeouts:  metrics.GetOrRegisterCounter("modem.waits.timeout", r),
		waitFailures:  metrics.GetOrRegisterCounter("modem.waits.failed", r),
	}, nil
}

// Loop reads the transport line by line and hands every line to the
// correlator. It must be called exactly once after New and before any
// command is issued, typically in its own goroutine:
//
//	m, err := modem.New(ctx, config)
//	if err != nil { return err }
//	go m.Loop(ctx)
//
// Loop returns when ctx is cancelled, the modem is closed or the transport
// reports EOF or an error. The outstanding wait and every later command then
// fail with ErrLoopStopped; Loop cannot be restarted.
func (m *Modem) Loop(ctx context.Context) (err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.stopErr != nil {
		stopErr := m.stopErr
		m.mu.Unlock()
		return stopErr
	}
	if m.loopRunning {
		m.mu.Unlock()
		return ErrLoopRunning
	}
	m.loopRunning = true
	ctx, m.loopCancel = context.WithCancel(ctx)
	m.mu.Unlock()

	defer func() {
		if ctx.Err() == nil {
			m.logger.Error("Modem reader stopped", "error", err)
		}
		stopErr := fmt.Errorf("%w: %w", ErrLoopStopped, err)
		m.mu.Lock()
		m.loopRunning = false
		m.stopErr = stopErr
		m.loopCancel()
		m.mu.Unlock()
		m.correlator.Stop(stopErr)
	}()

	scanner := bufio.NewScanner(m.transport)
	scanner.Buffer(make([]byte, 0, min(512, m.config.MaxLineSize)), m.config.MaxLineSize)
	scanner.Split(at.Splitter)

	lines := make(chan string, 16)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = ErrLineTooLong
			}
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return fmt.Errorf("read error: %w", err)
				default:
					return io.EOF
				}
			}
			m.handleLine(ctx, line)
		}
	}
}

// handleLine runs on the receive path and must not block.
func (m *Modem) handleLine(ctx context.Context, line string) {
	if line == "" {
		return
	}
	m.linesReceived.Inc(1)

	kind := at.Classify(line)
	if kind == at.TypeJSON {
		if json.Valid([]byte(line)) {
			m.mu.Lock()
			m.document = json.RawMessage(line)
			m.mu.Unlock()
			m.logger.DebugContext(ctx, "Modem JSON document", "bytes", len(line))
		} else {
			m.logger.WarnContext(ctx, "Malformed JSON line from modem", "bytes", len(line))
		}
	} else {
		m.logger.DebugContext(ctx, "Modem line", "line", line, "type", kind.String())
	}

	if m.correlator.OnLine(line) {
		return
	}
	if kind == at.TypeURC {
		m.logger.InfoContext(ctx, "Unsolicited result code", "line", line)
	}
}

// Close shuts down the modem and releases all resources.
// It stops the event loop, closes the transport connection, and marks
// the modem as closed. After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.closed = true
	if m.loopCancel != nil {
		m.loopCancel()
	}
	m.mu.Unlock()

	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

// Execute writes AT+<NAME> (or AT for CmdTest) and waits for the expected
// prefixes, OK by default. It returns the payload of the last prefix.
func (m *Modem) Execute(ctx context.Context, cmd at.Command, expect ...string) (string, error) {
	frame, err := at.EncodeExecute(cmd)
	if err != nil {
		return "", err
	}
	return m.exchange(ctx, frame, false, expect)
}

// Read writes AT+<NAME>? and waits for the expected prefixes, OK by default.
func (m *Modem) Read(ctx context.Context, cmd at.Command, expect ...string) (string, error) {
	frame, err := at.EncodeRead(cmd)
	if err != nil {
		return "", err
	}
	return m.exchange(ctx, frame, false, expect)
}

// Write writes AT+<NAME>=<params> for the command params belongs to and
// waits for the expected prefixes, OK by default.
func (m *Modem) Write(ctx context.Context, params at.Params, expect ...string) (string, error) {
	frame, err := at.Write(params)
	if err != nil {
		return "", err
	}
	return m.exchange(ctx, frame, false, expect)
}

// Send writes raw data, such as a URL or request text after CONNECT, and
// waits for the expected prefixes, OK by default. The data is not logged.
func (m *Modem) Send(ctx context.Context, data []byte, expect ...string) (string, error) {
	return m.exchange(ctx, data, true, expect)
}

// WaitFor waits for the expected prefixes without writing anything, e.g. for
// the APP RDY the modem prints after power up.
func (m *Modem) WaitFor(ctx context.Context, timeout time.Duration, expect ...string) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	payload, err := m.correlator.WaitFor(ctx, timeout, expect...)
	m.countWait(err)
	return payload, err
}

// Document returns the last JSON document the modem printed, or nil.
func (m *Modem) Document() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.document == nil {
		return nil
	}
	return append(json.RawMessage(nil), m.document...)
}

// ClearDocument forgets the last JSON document so that a later Document call
// only returns what the next exchange produced.
func (m *Modem) ClearDocument() {
	m.mu.Lock()
	m.document = nil
	m.mu.Unlock()
}

func (m *Modem) ready() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrAlreadyClosed
	}
	if m.transport == nil {
		return ErrNotInitialized
	}
	if m.stopErr != nil {
		return m.stopErr
	}
	return nil
}

func (m *Modem) exchange(ctx context.Context, frame []byte, opaque bool, expect []string) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	if len(expect) == 0 {
		expect = []string{at.OK}
	}

	w, err := m.correlator.Expect(expect...)
	if err != nil {
		return "", err
	}
	if err := m.write(ctx, frame, opaque); err != nil {
		w.Cancel()
		return "", err
	}

	payload, err := w.Wait(ctx, m.config.ResponseTimeout)
	m.countWait(err)
	return payload, err
}

func (m *Modem) write(ctx context.Context, frame []byte, opaque bool) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if opaque {
		m.logger.DebugContext(ctx, "Modem data", "bytes", len(frame))
	} else {
		m.logger.DebugContext(ctx, "Modem command", "cmd", strings.TrimSpace(string(frame)))
	}

	if _, err := m.transport.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	m.framesSent.Inc(1)
	return nil
}

func (m *Modem) countWait(err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		m.waitTimeouts.Inc(1)
	default:
		m.waitFailures.Inc(1)
	}
}
