package httptunnel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxRequestSize is the size of the modem-side request buffer, which also
// holds a terminating NUL. Request text must be shorter than MaxRequestSize.
const MaxRequestSize = 2048

const httpVersion = "HTTP/1.1"

var (
	// ErrRequestTooLarge is returned when the request text would not fit
	// MaxRequestSize together with its NUL.
	ErrRequestTooLarge = errors.New("http request text too large")

	// ErrInvalidMethod is returned for methods the modem cannot tunnel.
	ErrInvalidMethod = errors.New("unsupported http method")
)

// Method is an HTTP method the modem can tunnel.
type Method int

const (
	MethodPost Method = iota
	MethodPut
)

func (m Method) String() string {
	switch m {
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	default:
		return "Method(" + strconv.Itoa(int(m)) + ")"
	}
}

// Header formats a single "Name: value" header line.
func Header(name, value string) string {
	return name + ": " + value
}

// JSONHeaders returns the headers that accompany a JSON body: Content-Length
// and Content-Type.
func JSONHeaders(body string) []string {
	return []string{
		Header("Content-Length", strconv.Itoa(len(body))),
		Header("Content-Type", "application/json"),
	}
}

// BuildRequest assembles the request text:
//
//	<METHOD> <path> HTTP/1.1\r\n
//	<header>\r\n ...
//	\r\n
//	<body>\r\n
//
// The body line is omitted when body is empty, and the path is omitted when
// empty. Header lines are written as given.
func BuildRequest(method Method, path string, headers []string, body string) (string, error) {
	if method != MethodPost && method != MethodPut {
		return "", fmt.Errorf("%w: %s", ErrInvalidMethod, method)
	}

	var b strings.Builder
	b.WriteString(method.String())
	b.WriteByte(' ')
	if path != "" {
		b.WriteString(path)
		b.WriteByte(' ')
	}
	b.WriteString(httpVersion)
	b.WriteString("\r\n")

	for _, h := range headers {
		if strings.ContainsAny(h, "\r\n") {
			return "", fmt.Errorf("httptunnel: header %q contains a line break", h)
		}
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	if body != "" {
		b.WriteString(body)
		b.WriteString("\r\n")
	}

	if b.Len() >= MaxRequestSize {
		return "", fmt.Errorf("%w: %d bytes, at most %d", ErrRequestTooLarge, b.Len(), MaxRequestSize-1)
	}
	return b.String(), nil
}
