package modem

import (
	"io"
	"sync"
)

// Responder answers a frame written to a TestTransport with the raw bytes the
// simulated modem prints back. Returning an empty string prints nothing.
type Responder func(frame string) string

// TestTransport is a test helper that simulates a blocking transport using channels.
// This is needed because the Loop's scanner goroutine continuously reads from the transport,
// and we need reads to block until data is available (like a real serial port would).
//
// Every Write is recorded and, when a Responder is installed, answered on the
// read side, which is enough to script a complete modem conversation.
type TestTransport struct {
	mu        sync.Mutex
	readChan  chan []byte
	closed    bool
	writes    []string
	responder Responder
	writeErr  error

	// pending holds the part of a chunk that did not fit the last Read
	pending []byte
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
	}
}

// Respond installs the Responder used for subsequent writes.
func (t *TestTransport) Respond(r Responder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = r
}

// FailWrites makes every subsequent Write return err.
func (t *TestTransport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// Writes returns a copy of everything written so far, one entry per Write.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.writeErr != nil {
		err := t.writeErr
		t.mu.Unlock()
		return 0, err
	}
	if t.closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	frame := string(p)
	t.writes = append(t.writes, frame)
	responder := t.responder
	t.mu.Unlock()

	if responder != nil {
		if reply := responder(frame); reply != "" {
			t.SendData(reply)
		}
	}
	return len(p), nil
}

// Read is meant for a single reader goroutine, such as Modem.Loop.
func (t *TestTransport) Read(p []byte) (n int, err error) {
	if len(t.pending) > 0 {
		n = copy(p, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}

	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	n = copy(p, data)
	t.pending = data[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}
