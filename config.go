package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"i4.energy/across/catmgw/gateway"
)

// envPrefix namespaces environment variables, e.g. CATMGW_SERIAL_PORT. The
// unprefixed names (SERIAL_PORT) are accepted as well.
const envPrefix = "catmgw"

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address" envconfig:"BIND_ADDRESS"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port" envconfig:"SERIAL_PORT"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate" envconfig:"BAUD_RATE"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	// ResponseTimeout bounds every wait for a modem response
	ResponseTimeout time.Duration `yaml:"response_timeout" envconfig:"RESPONSE_TIMEOUT"`

	// ReadyTimeout bounds the wait for APP RDY before a plain AT is sent instead
	ReadyTimeout time.Duration `yaml:"ready_timeout" envconfig:"READY_TIMEOUT"`
	// ScanSequence, ScanMode and IoTOperationMode are the AT+QCFG network
	// search settings (nwscanseq, nwscanmode, iotopmode)
	ScanSequence     string `yaml:"scan_sequence" envconfig:"SCAN_SEQUENCE"`
	ScanMode         string `yaml:"scan_mode" envconfig:"SCAN_MODE"`
	IoTOperationMode string `yaml:"iot_operation_mode" envconfig:"IOT_OPERATION_MODE"`
	// APN is the access point name of PDP context 1
	APN string `yaml:"apn" envconfig:"APN"`
	// PingHost is pinged once the modem is registered
	PingHost             string        `yaml:"ping_host" envconfig:"PING_HOST"`
	RegistrationInterval time.Duration `yaml:"registration_interval" envconfig:"REGISTRATION_INTERVAL"`
	GrantInterval        time.Duration `yaml:"grant_interval" envconfig:"GRANT_INTERVAL"`
	HTTPTimeout          time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT"`
	// RefreshInterval is how often the access token is refreshed. Zero
	// disables periodic refresh.
	RefreshInterval time.Duration `yaml:"refresh_interval" envconfig:"REFRESH_INTERVAL"`
	// RetryInterval is the first pause after a failed bootstrap or connect
	// attempt; it doubles up to MaxRetryInterval
	RetryInterval    time.Duration `yaml:"retry_interval" envconfig:"RETRY_INTERVAL"`
	MaxRetryInterval time.Duration `yaml:"max_retry_interval" envconfig:"MAX_RETRY_INTERVAL"`

	APIHost     string `yaml:"api_host" envconfig:"API_HOST"`
	APIKey      string `yaml:"api_key" envconfig:"API_KEY"`
	OwnerID     string `yaml:"owner_id" envconfig:"OWNER_ID"`
	GatewayName string `yaml:"gateway_name" envconfig:"GATEWAY_NAME"`

	// MQTTBroker enables the status uplink when set (e.g. "ssl://mqtt.example.com:8883")
	MQTTBroker string `yaml:"mqtt_broker" envconfig:"MQTT_BROKER"`
	MQTTTopic  string `yaml:"mqtt_topic" envconfig:"MQTT_TOPIC"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.ResponseTimeout = 60 * time.Second
		c.ReadyTimeout = gateway.DefaultReadyTimeout
		c.ScanSequence = gateway.DefaultScanSequence
		c.ScanMode = gateway.DefaultScanMode
		c.IoTOperationMode = gateway.DefaultIoTOperationMode
		c.APN = gateway.DefaultAPN
		c.PingHost = gateway.DefaultPingHost
		c.RegistrationInterval = gateway.DefaultRegistrationInterval
		c.GrantInterval = gateway.DefaultGrantInterval
		c.HTTPTimeout = gateway.DefaultHTTPTimeout
		c.RefreshInterval = 30 * time.Minute
		c.RetryInterval = 10 * time.Second
		c.MaxRetryInterval = 5 * time.Minute
		c.APIHost = gateway.DefaultAPIHost
		c.MQTTTopic = "gateways/status"
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables, after loading the
// given .env files (".env" when none are given). Missing files are ignored.
func WithEnv(files ...string) ConfigOption {
	return func(c *Config) error {
		if len(files) == 0 {
			files = []string{".env"}
		}
		for _, f := range files {
			if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", f, err)
			}
		}

		if err := envconfig.Process(envPrefix, c); err != nil {
			return fmt.Errorf("environment: %w", err)
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var errs []error
		duration := func(f *flag.Flag, dst *time.Duration) {
			d, err := time.ParseDuration(f.Value.String())
			if err != nil {
				errs = append(errs, fmt.Errorf("flag -%s: %w", f.Name, err))
				return
			}
			*dst = d
		}

		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "response-timeout":
				duration(f, &c.ResponseTimeout)
			case "ready-timeout":
				duration(f, &c.ReadyTimeout)
			case "scan-sequence":
				c.ScanSequence = f.Value.String()
			case "scan-mode":
				c.ScanMode = f.Value.String()
			case "iot-operation-mode":
				c.IoTOperationMode = f.Value.String()
			case "apn":
				c.APN = f.Value.String()
			case "refresh-interval":
				duration(f, &c.RefreshInterval)
			case "retry-interval":
				duration(f, &c.RetryInterval)
			case "api-host":
				c.APIHost = f.Value.String()
			case "api-key":
				c.APIKey = f.Value.String()
			case "owner-id":
				c.OwnerID = f.Value.String()
			case "gateway-name":
				c.GatewayName = f.Value.String()
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			}
		})
		return errors.Join(errs...)
	}
}
