package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has no transport.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, or when a command is issued after Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is started twice.
	ErrLoopRunning = errors.New("modem loop already running")

	// ErrTimeout is returned when no line matching the expected prefix arrived
	// within the response timeout.
	//
	// The correlator never retries; the flow step that issued the command
	// decides whether to retry or abort.
	ErrTimeout = errors.New("modem response timeout")

	// ErrTransport is returned when writing a frame to the modem failed.
	ErrTransport = errors.New("modem transport failure")

	// ErrWaitPending is returned when a wait is registered while another one is
	// still outstanding. The protocol has no pipelining, so this is always a
	// programming error in the caller.
	ErrWaitPending = errors.New("a modem response wait is already pending")

	// ErrPayloadTooLarge is returned when the part of a matched line beyond the
	// expected prefix does not fit the payload capacity.
	ErrPayloadTooLarge = errors.New("modem response payload too large")

	// ErrCommandFailed is returned when the modem answers ERROR or
	// +CME ERROR while a wait is outstanding.
	ErrCommandFailed = errors.New("modem command failed")

	// ErrLoopStopped is returned for the outstanding wait and for every later
	// command once Loop has returned. No response can arrive without the
	// reader, so waiting for one would only end in ErrTimeout. The reason the
	// loop stopped is wrapped as well.
	ErrLoopStopped = errors.New("modem reader stopped")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")
)
