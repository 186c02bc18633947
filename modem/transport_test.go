package modem

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.bug.st/serial"
)

func TestSerialDialerMode(t *testing.T) {
	custom := &serial.Mode{BaudRate: 9600, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}

	tests := []struct {
		name     string
		dialer   SerialDialer
		expected serial.Mode
	}{
		{
			name:     "default baud rate",
			dialer:   SerialDialer{PortName: "/dev/ttyUSB2"},
			expected: serial.Mode{BaudRate: DefaultBaudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name:     "baud rate override",
			dialer:   SerialDialer{PortName: "/dev/ttyUSB2", BaudRate: 57600},
			expected: serial.Mode{BaudRate: 57600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name:     "mode takes precedence over baud rate",
			dialer:   SerialDialer{PortName: "/dev/ttyUSB2", BaudRate: 57600, Mode: custom},
			expected: *custom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.dialer.mode()
			if got.BaudRate != tt.expected.BaudRate || got.DataBits != tt.expected.DataBits ||
				got.Parity != tt.expected.Parity || got.StopBits != tt.expected.StopBits {
				t.Errorf("expected mode %+v, got %+v", tt.expected, *got)
			}
		})
	}

	if d := (SerialDialer{Mode: custom}); d.mode() != custom {
		t.Error("an explicit mode should be passed through unchanged")
	}
}

func TestSerialDialerDial(t *testing.T) {
	t.Run("Port name is required", func(t *testing.T) {
		transport, err := SerialDialer{}.Dial(context.Background())
		if err == nil || err.Error() != "modem: serial port name is required" {
			t.Errorf("unexpected error: %v", err)
		}
		if transport != nil {
			t.Error("expected nil transport")
		}
	})

	t.Run("Nil context", func(t *testing.T) {
		transport, err := SerialDialer{PortName: "/dev/ttyUSB2"}.Dial(nil)
		if err == nil || err.Error() != "modem: context is nil" {
			t.Errorf("unexpected error: %v", err)
		}
		if transport != nil {
			t.Error("expected nil transport")
		}
	})

	t.Run("Cancelled context is checked before opening", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := SerialDialer{PortName: "/dev/ttyUSB2"}.Dial(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got: %v", err)
		}
	})

	t.Run("Missing device error is wrapped", func(t *testing.T) {
		port := filepath.Join(t.TempDir(), "ttyUSB9")

		transport, err := SerialDialer{PortName: port}.Dial(context.Background())
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected the open error to be wrapped, got: %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "modem: open "+port) {
			t.Errorf("expected the port name in the error, got: %v", err)
		}
		if transport != nil {
			t.Error("expected nil transport")
		}
	})

	t.Run("File that is not a serial port", func(t *testing.T) {
		port := filepath.Join(t.TempDir(), "not-a-tty")
		if err := os.WriteFile(port, nil, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}

		_, err := SerialDialer{PortName: port}.Dial(context.Background())
		var portErr *serial.PortError
		if !errors.As(err, &portErr) {
			t.Fatalf("expected a wrapped *serial.PortError, got: %v", err)
		}
		if portErr.Code() != serial.InvalidSerialPort {
			t.Errorf("expected InvalidSerialPort, got %v", portErr.Code())
		}
	})
}
