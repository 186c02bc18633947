package uplink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TokenSource returns the current access token. It is consulted on every
// connect and reconnect, so a refreshed token is picked up without
// restarting the client.
type TokenSource func() string

type Config struct {
	// Broker is the broker URL, e.g. ssl://mqtt.example.com:8883.
	Broker string
	Topic  string
	// ClientID identifies the connection; the gateway name is used.
	ClientID string
	// Username is sent with the access token as password; the owner id is
	// used.
	Username string
	Token    TokenSource
	QoS      byte
	Logger   *slog.Logger
}

func (c *Config) validate() error {
	if c.Broker == "" {
		return errors.New("uplink: broker is required")
	}
	if c.Topic == "" {
		return errors.New("uplink: topic is required")
	}
	if c.Token == nil {
		return errors.New("uplink: token source is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("uplink: invalid QoS %d", c.QoS)
	}
	return nil
}

// Publisher sends gateway documents to the broker.
type Publisher struct {
	client mqtt.Client
	config Config
	logger *slog.Logger
}

// NewClientOptions builds the MQTT options for config.
func NewClientOptions(config Config) *mqtt.ClientOptions {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetCredentialsProvider(func() (string, string) {
		return config.Username, config.Token()
	})
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", "broker", config.Broker, "topic", config.Topic)
	})
	return opts
}

func New(config Config) (*Publisher, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		client: mqtt.NewClient(NewClientOptions(config)),
		config: config,
		logger: config.Logger,
	}, nil
}

// Connect starts the client. With connect retry enabled the client keeps
// trying in the background; Connect returns once the first attempt
// succeeded, failed or ctx is done.
func (p *Publisher) Connect(ctx context.Context) error {
	return wait(ctx, p.client.Connect())
}

// Publish encodes v as JSON and publishes it to the configured topic.
func (p *Publisher) Publish(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("uplink: encode: %w", err)
	}
	if err := wait(ctx, p.client.Publish(p.config.Topic, p.config.QoS, false, payload)); err != nil {
		return fmt.Errorf("uplink: publish to %s: %w", p.config.Topic, err)
	}
	p.logger.DebugContext(ctx, "Published uplink document", "topic", p.config.Topic, "bytes", len(payload))
	return nil
}

// Close disconnects, waiting up to 500ms for in-flight work.
func (p *Publisher) Close() {
	p.client.Disconnect(500)
}

func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
