package modem_test

import (
	"testing"
	"time"

	"i4.energy/across/catmgw/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults are applied", func(t *testing.T) {
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.SerialDialer{PortName: "/dev/ttyUSB2"}).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		if config.ResponseTimeout != 60*time.Second {
			t.Errorf("expected 60s response timeout, got %s", config.ResponseTimeout)
		}
		if config.MaxPayload != modem.DefaultMaxPayload {
			t.Errorf("expected payload capacity %d, got %d", modem.DefaultMaxPayload, config.MaxPayload)
		}
		if config.MaxLineSize != modem.DefaultMaxLineSize {
			t.Errorf("expected line size %d, got %d", modem.DefaultMaxLineSize, config.MaxLineSize)
		}
		if config.Logger == nil || config.Registry == nil {
			t.Error("expected logger and registry defaults")
		}
	})

	t.Run("Explicit values are kept", func(t *testing.T) {
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.SerialDialer{PortName: "/dev/ttyUSB2"}).
			WithResponseTimeout(5 * time.Second).
			WithMaxPayload(64).
			WithMaxLineSize(8192).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		if config.ResponseTimeout != 5*time.Second {
			t.Errorf("expected 5s response timeout, got %s", config.ResponseTimeout)
		}
		if config.MaxPayload != 64 {
			t.Errorf("expected payload capacity 64, got %d", config.MaxPayload)
		}
		if config.MaxLineSize != 8192 {
			t.Errorf("expected line size 8192, got %d", config.MaxLineSize)
		}
	})
}
