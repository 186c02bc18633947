package uplink_test

import (
	"context"
	"testing"

	"i4.energy/across/catmgw/uplink"
)

func TestNewClientOptions(t *testing.T) {
	token := "first"
	opts := uplink.NewClientOptions(uplink.Config{
		Broker:   "tcp://broker.example.com:1883",
		Topic:    "gateways/status",
		ClientID: "tandemGW",
		Username: "959266658936",
		Token:    func() string { return token },
	})

	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker.example.com:1883" {
		t.Errorf("unexpected servers: %v", opts.Servers)
	}
	if opts.ClientID != "tandemGW" {
		t.Errorf("expected client id tandemGW, got %q", opts.ClientID)
	}
	if !opts.AutoReconnect {
		t.Error("expected auto reconnect")
	}

	user, pass := opts.CredentialsProvider()
	if user != "959266658936" || pass != "first" {
		t.Errorf("unexpected credentials %q/%q", user, pass)
	}

	// A refreshed token is used on the next connect.
	token = "second"
	if _, pass := opts.CredentialsProvider(); pass != "second" {
		t.Errorf("expected refreshed token, got %q", pass)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config uplink.Config
		ok     bool
	}{
		{name: "missing broker", config: uplink.Config{Topic: "t", Token: func() string { return "" }}},
		{name: "missing topic", config: uplink.Config{Broker: "tcp://b:1883", Token: func() string { return "" }}},
		{name: "missing token source", config: uplink.Config{Broker: "tcp://b:1883", Topic: "t"}},
		{name: "invalid qos", config: uplink.Config{Broker: "tcp://b:1883", Topic: "t", QoS: 3, Token: func() string { return "" }}},
		{name: "valid", config: uplink.Config{Broker: "tcp://b:1883", Topic: "t", Token: func() string { return "" }}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := uplink.New(tt.config)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected an error")
			}
			if tt.ok && p == nil {
				t.Error("expected a publisher")
			}
		})
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	p, err := uplink.New(uplink.Config{
		Broker: "tcp://127.0.0.1:1",
		Topic:  "gateways/status",
		Token:  func() string { return "A" },
	})
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}

	if err := p.Publish(context.Background(), map[string]string{"state": "Authenticated"}); err == nil {
		t.Error("expected publish to fail before connecting")
	}
}
