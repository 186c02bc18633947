package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcrowley/go-metrics"
)

const (
	DefaultReadyTimeout         = 60 * time.Second
	DefaultRegistrationInterval = 10 * time.Second
	DefaultGrantInterval        = 30 * time.Second
	DefaultHTTPTimeout          = 80 * time.Second

	DefaultScanSequence     = "020202"
	DefaultScanMode         = "0"
	DefaultIoTOperationMode = "0"
	DefaultAPN              = "uinternet"
	DefaultPingHost         = "www.google.com"
	DefaultAPIHost          = "api.wiliot.com"

	// RegisteredPayload is the +CEREG: read payload of a modem registered on
	// its home network.
	RegisteredPayload = " 1,1"
)

type Config struct {
	// ReadyTimeout bounds the wait for APP RDY after power up.
	ReadyTimeout time.Duration
	// RegistrationInterval is the pause between two registration queries.
	RegistrationInterval time.Duration
	// GrantInterval is the pause between two token polls while the user
	// code is not yet authorized.
	GrantInterval time.Duration
	// HTTPTimeout is handed to the modem for every tunnelled exchange.
	HTTPTimeout time.Duration

	ScanSequence     string
	ScanMode         string
	IoTOperationMode string
	APN              string
	PingHost         string

	// APIHost is the OAuth service host. Requests go to https://<APIHost>.
	APIHost string
	// APIKey authorizes the client token request.
	APIKey string
	// OwnerID is the account the gateway is put under.
	OwnerID string
	// GatewayName identifies the gateway towards the service.
	GatewayName string

	Logger   *slog.Logger
	Registry metrics.Registry
}

func (c *Config) setDefaults() {
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.RegistrationInterval == 0 {
		c.RegistrationInterval = DefaultRegistrationInterval
	}
	if c.GrantInterval == 0 {
		c.GrantInterval = DefaultGrantInterval
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.ScanSequence == "" {
		c.ScanSequence = DefaultScanSequence
	}
	if c.ScanMode == "" {
		c.ScanMode = DefaultScanMode
	}
	if c.IoTOperationMode == "" {
		c.IoTOperationMode = DefaultIoTOperationMode
	}
	if c.APN == "" {
		c.APN = DefaultAPN
	}
	if c.PingHost == "" {
		c.PingHost = DefaultPingHost
	}
	if c.APIHost == "" {
		c.APIHost = DefaultAPIHost
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Registry == nil {
		c.Registry = metrics.NewRegistry()
	}
}

// validateOAuth checks the settings the connect flow needs. Bootstrap runs
// without them.
func (c *Config) validateOAuth() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: API key", ErrMissingSetting))
	}
	if c.OwnerID == "" {
		errs = append(errs, fmt.Errorf("%w: owner id", ErrMissingSetting))
	}
	if c.GatewayName == "" {
		errs = append(errs, fmt.Errorf("%w: gateway name", ErrMissingSetting))
	}
	return errors.Join(errs...)
}
