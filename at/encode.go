package at

import (
	"fmt"
)

// MaxFrameSize is the capacity of the modem transmit buffer. Frames that
// would exceed it are rejected rather than truncated.
const MaxFrameSize = 128

const (
	prefix = "AT"

	commandSymbol = '+'
	readSymbol    = '?'
	writeSymbol   = '='
	keySeparator  = ':'
)

// EncodeRead returns the read form of cmd: AT+<NAME>?\r\n.
func EncodeRead(cmd Command) ([]byte, error) {
	if err := checkNamed(cmd); err != nil {
		return nil, err
	}
	frame := appendHead(make([]byte, 0, MaxFrameSize), cmd)
	frame = append(frame, readSymbol)
	return finish(frame)
}

// EncodeExecute returns the execute form of cmd: AT+<NAME>\r\n, or the bare
// AT\r\n for CmdTest.
func EncodeExecute(cmd Command) ([]byte, error) {
	if !cmd.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCommand, int(cmd))
	}
	frame := appendHead(make([]byte, 0, MaxFrameSize), cmd)
	return finish(frame)
}

// EncodeWrite returns the write form of cmd: AT+<NAME>=<params>\r\n. The
// params must be the variant that belongs to cmd.
func EncodeWrite(cmd Command, params Params) ([]byte, error) {
	if err := checkNamed(cmd); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, fmt.Errorf("%w: %s requires parameters", ErrInvalidParams, cmd)
	}
	if params.Command() != cmd {
		return nil, fmt.Errorf("%w: %T does not belong to %s", ErrInvalidParams, params, cmd)
	}

	frame := appendHead(make([]byte, 0, MaxFrameSize), cmd)
	frame = append(frame, writeSymbol)
	frame, err := params.appendParams(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd, err)
	}
	return finish(frame)
}

// Write is EncodeWrite with the command taken from params.
func Write(params Params) ([]byte, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil parameters", ErrInvalidParams)
	}
	return EncodeWrite(params.Command(), params)
}

// ResponsePrefix returns the "+<NAME>:" prefix the modem puts in front of the
// information response of cmd.
func ResponsePrefix(cmd Command) (string, error) {
	if err := checkNamed(cmd); err != nil {
		return "", err
	}
	name := commandNames[cmd]
	b := make([]byte, 0, len(name)+2)
	b = append(b, commandSymbol)
	b = append(b, name...)
	b = append(b, keySeparator)
	return string(b), nil
}

// MustResponsePrefix is ResponsePrefix for catalog constants known to be
// valid at compile time.
func MustResponsePrefix(cmd Command) string {
	p, err := ResponsePrefix(cmd)
	if err != nil {
		panic(err)
	}
	return p
}

func checkNamed(cmd Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidCommand, int(cmd))
	}
	if cmd == CmdTest {
		return fmt.Errorf("%w: %s has no read, write or response form", ErrInvalidParams, cmd)
	}
	return nil
}

func appendHead(dst []byte, cmd Command) []byte {
	dst = append(dst, prefix...)
	if cmd != CmdTest {
		dst = append(dst, commandSymbol)
		dst = append(dst, commandNames[cmd]...)
	}
	return dst
}

func finish(frame []byte) ([]byte, error) {
	frame = append(frame, CRLF...)
	if len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrInvalidParams, len(frame), MaxFrameSize)
	}
	return frame, nil
}
