package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input on LF and drops the CR that precedes it, so "OK\r\n"
// yields the token "OK". Lines without a CR are accepted as well because the
// modem echoes tunnelled HTTP bodies verbatim.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	switch line {
	case OK, ERROR:
		return TypeFinal
	case AppReady, UrcPowerDown:
		return TypeURC
	}

	switch {
	case strings.HasPrefix(line, "{"):
		return TypeJSON
	case strings.HasPrefix(line, Connect):
		return TypeConnect
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcTimeZone), strings.HasPrefix(line, UrcPing):
		return TypeURC
	default:
		return TypeData
	}
}

// IsFailure reports whether line is a final result code that reports a failed
// command.
func IsFailure(line string) bool {
	return line == ERROR || strings.HasPrefix(line, CmeError) || strings.HasPrefix(line, CmsError)
}
