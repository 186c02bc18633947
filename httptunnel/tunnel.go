package httptunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"

	"i4.energy/across/catmgw/at"
	"i4.energy/across/catmgw/logging"
)

// DefaultTimeout is handed to the modem for URL input, request input and
// response waits.
const DefaultTimeout = 80 * time.Second

var (
	// ErrExchangeFailed is returned when the modem reports a non-zero error
	// code for the request or the read-back of its response.
	ErrExchangeFailed = errors.New("modem http exchange failed")

	// ErrMalformedResult is returned when the +QHTTPPOST/+QHTTPPUT/+QHTTPREAD
	// result cannot be parsed.
	ErrMalformedResult = errors.New("malformed modem http result")
)

// Exchanger is the part of the modem session the tunnel drives.
// *modem.Modem satisfies it.
type Exchanger interface {
	Write(ctx context.Context, params at.Params, expect ...string) (string, error)
	Send(ctx context.Context, data []byte, expect ...string) (string, error)
	Document() json.RawMessage
	ClearDocument()
}

type Config struct {
	// URL is the scheme and host every request is sent to, e.g.
	// https://api.wiliot.com. The path travels in the request text.
	URL string
	// Timeout is passed to the modem, in whole seconds.
	Timeout time.Duration
	// ContextID is the PDP context the modem's HTTP stack uses.
	ContextID int
	Logger    *slog.Logger
	Registry  metrics.Registry
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ContextID == 0 {
		c.ContextID = 1
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Registry == nil {
		c.Registry = metrics.NewRegistry()
	}
}

// Response is the outcome of one tunnelled exchange.
type Response struct {
	// ModemError is the error code the modem reported, 0 on success.
	ModemError    int
	StatusCode    int
	ContentLength int
	// Body is the JSON document the modem printed while the response was
	// read back, or nil if it printed none.
	Body json.RawMessage
}

// Tunnel sends HTTP requests through the modem's HTTP stack. It performs one
// exchange at a time; callers serialize access to the modem.
type Tunnel struct {
	modem  Exchanger
	config Config
	logger *slog.Logger

	exchanges metrics.Timer
	failures  metrics.Counter
}

func New(m Exchanger, config Config) *Tunnel {
	config.setDefaults()
	return &Tunnel{
		modem:     m,
		config:    config,
		logger:    config.Logger,
		exchanges: metrics.GetOrRegisterTimer("httptunnel.exchange", config.Registry),
		failures:  metrics.GetOrRegisterCounter("httptunnel.failures", config.Registry),
	}
}

// URL returns the configured request URL.
func (t *Tunnel) URL() string {
	return t.config.URL
}

// Configure selects the PDP context, tells the modem that request text
// carries its own headers and sets the URL.
func (t *Tunnel) Configure(ctx context.Context) error {
	settings := []at.HTTPConfig{
		{Key: at.HTTPContextID, Value: t.config.ContextID},
		{Key: at.HTTPRequestHeader, Value: 1},
	}
	for _, p := range settings {
		if _, err := t.modem.Write(ctx, p); err != nil {
			return fmt.Errorf("http config: %w", err)
		}
	}
	return t.SetURL(ctx)
}

// SetURL runs AT+QHTTPURL and types the URL after CONNECT.
func (t *Tunnel) SetURL(ctx context.Context) error {
	if t.config.URL == "" {
		return errors.New("httptunnel: URL is required")
	}
	url := []byte(t.config.URL)
	if _, err := t.modem.Write(ctx, at.HTTPURL{Length: len(url), Timeout: t.timeoutSeconds()}, at.Connect); err != nil {
		return fmt.Errorf("http url: %w", err)
	}
	if _, err := t.modem.Send(ctx, url, at.OK); err != nil {
		return fmt.Errorf("http url: %w", err)
	}
	t.logger.DebugContext(ctx, "HTTP URL configured", "url", t.config.URL)
	return nil
}

// Do sends request text built with BuildRequest and reads back the response.
// Every exchange gets its own id which is attached to the log records.
func (t *Tunnel) Do(ctx context.Context, method Method, text string) (*Response, error) {
	ctx = logging.ContextWithExchangeID(ctx, uuid.NewString())
	start := time.Now()
	defer t.exchanges.UpdateSince(start)

	resp, err := t.do(ctx, method, text)
	if err != nil {
		t.failures.Inc(1)
		t.logger.WarnContext(ctx, "HTTP exchange failed", "method", method.String(), "error", err)
		return resp, err
	}

	t.logger.InfoContext(ctx, "HTTP exchange",
		"method", method.String(),
		"status", resp.StatusCode,
		"content_length", resp.ContentLength,
		"duration", time.Since(start))
	return resp, nil
}

func (t *Tunnel) do(ctx context.Context, method Method, text string) (*Response, error) {
	if text == "" {
		return nil, errors.New("httptunnel: empty request")
	}
	if len(text) > MaxRequestSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrRequestTooLarge, len(text), MaxRequestSize)
	}

	secs := t.timeoutSeconds()
	var params at.Params
	switch method {
	case MethodPost:
		params = at.HTTPPost{BodySize: len(text), InputTimeout: secs, ResponseTimeout: secs}
	case MethodPut:
		params = at.HTTPPut{BodySize: len(text), InputTimeout: secs, ResponseTimeout: secs}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidMethod, method)
	}
	prefix, err := at.ResponsePrefix(params.Command())
	if err != nil {
		return nil, err
	}

	t.modem.ClearDocument()

	if _, err := t.modem.Write(ctx, params, at.Connect); err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	t.logger.DebugContext(ctx, "HTTP request text", "method", method.String(), "bytes", len(text))
	result, err := t.modem.Send(ctx, []byte(text), at.OK, prefix)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}

	resp, err := parseResult(result)
	if err != nil {
		return nil, err
	}
	if resp.ModemError != 0 {
		return resp, fmt.Errorf("%w: %s error %d", ErrExchangeFailed, method, resp.ModemError)
	}

	readResult, err := t.modem.Write(ctx, at.HTTPRead{Timeout: secs}, at.Connect, at.OK, at.MustResponsePrefix(at.CmdHTTPRead))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	code, err := strconv.Atoi(strings.TrimSpace(readResult))
	if err != nil {
		return nil, fmt.Errorf("%w: read result %q", ErrMalformedResult, readResult)
	}
	if code != 0 {
		return resp, fmt.Errorf("%w: read error %d", ErrExchangeFailed, code)
	}

	resp.Body = t.modem.Document()
	return resp, nil
}

func (t *Tunnel) timeoutSeconds() int {
	return int(t.config.Timeout / time.Second)
}

// parseResult decodes " <err>[,<status>[,<content length>]]".
func parseResult(payload string) (*Response, error) {
	fields := strings.Split(strings.TrimSpace(payload), ",")
	if len(fields) > 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedResult, payload)
	}

	values := make([]int, 3)
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedResult, payload)
		}
		values[i] = v
	}

	return &Response{
		ModemError:    values[0],
		StatusCode:    values[1],
		ContentLength: values[2],
	}, nil
}
