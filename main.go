package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcrowley/go-metrics"

	"i4.energy/across/catmgw/gateway"
	"i4.energy/across/catmgw/logging"
	"i4.energy/across/catmgw/modem"
	"i4.energy/across/catmgw/uplink"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Duration("response-timeout", 60*time.Second, "Timeout of a single modem response")
	flag.Duration("ready-timeout", gateway.DefaultReadyTimeout, "Wait for APP RDY before falling back to a plain AT")
	flag.String("scan-sequence", gateway.DefaultScanSequence, "AT+QCFG nwscanseq value")
	flag.String("scan-mode", gateway.DefaultScanMode, "AT+QCFG nwscanmode value")
	flag.String("iot-operation-mode", gateway.DefaultIoTOperationMode, "AT+QCFG iotopmode value")
	flag.String("apn", gateway.DefaultAPN, "Access point name of PDP context 1")
	flag.Duration("refresh-interval", 30*time.Minute, "Access token refresh interval (0 disables)")
	flag.Duration("retry-interval", 10*time.Second, "First pause after a failed bootstrap or connect attempt")
	flag.String("api-host", gateway.DefaultAPIHost, "OAuth service host")
	flag.String("api-key", "", "API key for the client token request")
	flag.String("owner-id", "", "Owner account the gateway is put under")
	flag.String("gateway-name", "", "Gateway name towards the service")
	flag.String("mqtt-broker", "", "MQTT broker for status uplink (disabled when empty)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(logging.NewContextHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	registry := metrics.NewRegistry()

	modemConfig, err := modem.NewConfigBuilder().
		WithResponseTimeout(config.ResponseTimeout).
		WithLogger(logger.With("component", "modem")).
		WithRegistry(registry).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	m, err := modem.New(context.Background(), modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopErr := make(chan error, 1)
	go func() {
		if err := m.Loop(ctx); err != nil && ctx.Err() == nil {
			loopErr <- err
		}
	}()

	gw := gateway.New(m, gateway.Config{
		ReadyTimeout:         config.ReadyTimeout,
		ScanSequence:         config.ScanSequence,
		ScanMode:             config.ScanMode,
		IoTOperationMode:     config.IoTOperationMode,
		RegistrationInterval: config.RegistrationInterval,
		GrantInterval:        config.GrantInterval,
		HTTPTimeout:          config.HTTPTimeout,
		APN:                  config.APN,
		PingHost:             config.PingHost,
		APIHost:              config.APIHost,
		APIKey:               config.APIKey,
		OwnerID:              config.OwnerID,
		GatewayName:          config.GatewayName,
		Logger:               logger.With("component", "gateway"),
		Registry:             registry,
	})

	logger.Info("Starting CAT-M gateway", "serial_port", config.SerialPort, "gateway", config.GatewayName)

	gwDone := make(chan struct{})
	go func() {
		defer close(gwDone)
		runGateway(ctx, logger, gw, config)
	}()

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:   logger.With("component", "server"),
			Gateway:  gw,
			Registry: registry,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal or the end of the modem reader
	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case err := <-loopErr:
		logger.Error("Modem reader stopped, shutting down", "error", err)
		exitCode = 1
	}

	cancel()
	<-gwDone

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// runGateway brings the gateway online and keeps its access token fresh
// until ctx is cancelled. Failed attempts are retried with backoff. Status
// documents are published to the uplink when a broker is configured.
func runGateway(ctx context.Context, logger *slog.Logger, gw *gateway.Gateway, config *Config) {
	b := backoff{initial: config.RetryInterval, max: config.MaxRetryInterval}
	online := func(ctx context.Context) error {
		return bringOnline(ctx, logger, gw)
	}
	if err := retry(ctx, logger, "connect", b, online); err != nil {
		if ctx.Err() == nil {
			logger.Error("Gateway cannot come online", "error", err, "state", gw.State().String())
		}
		return
	}
	logger.Info("Gateway authenticated", "gateway", config.GatewayName)

	var publisher *uplink.Publisher
	if config.MQTTBroker != "" {
		p, err := uplink.New(uplink.Config{
			Broker:   config.MQTTBroker,
			Topic:    config.MQTTTopic,
			ClientID: config.GatewayName,
			Username: config.OwnerID,
			Token:    gw.Credentials().AccessToken,
			QoS:      1,
			Logger:   logger.With("component", "uplink"),
		})
		if err != nil {
			logger.Error("Failed to create uplink", "error", err)
		} else if err := p.Connect(ctx); err != nil {
			logger.Error("Failed to connect uplink", "error", err)
			p.Close()
		} else {
			publisher = p
			defer publisher.Close()
		}
	}

	publish := func() {
		if publisher == nil {
			return
		}
		if err := publisher.Publish(ctx, gw.Status()); err != nil {
			logger.Warn("Failed to publish status", "error", err)
		}
	}
	publish()

	if config.RefreshInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := gw.Refresh(ctx); err != nil {
				logger.Error("Scheduled token refresh failed", "error", err)
				continue
			}
			publish()
		}
	}
}
