package modem

import (
	"log/slog"
	"time"

	"github.com/rcrowley/go-metrics"
)

// DefaultMaxLineSize bounds a single line read from the modem. Tunnelled
// JSON bodies carrying an access token are the longest lines.
const DefaultMaxLineSize = 4096

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

type Config struct {
	Dialer          Dialer
	ResponseTimeout time.Duration
	MaxPayload      int
	MaxLineSize     int
	Logger          *slog.Logger
	Registry        metrics.Registry
}

func (c *Config) setDefaults() {
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 60 * time.Second
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = DefaultMaxPayload
	}
	if c.MaxLineSize == 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Registry == nil {
		c.Registry = metrics.NewRegistry()
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

// WithResponseTimeout sets how long each wait for a modem line may take.
func (b *ConfigBuilder) WithResponseTimeout(d time.Duration) *ConfigBuilder {
	b.config.ResponseTimeout = d
	return b
}

func (b *ConfigBuilder) WithMaxPayload(n int) *ConfigBuilder {
	b.config.MaxPayload = n
	return b
}

func (b *ConfigBuilder) WithMaxLineSize(n int) *ConfigBuilder {
	b.config.MaxLineSize = n
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithRegistry(r metrics.Registry) *ConfigBuilder {
	b.config.Registry = r
	return b
}

// Build applies defaults and validates the configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
