package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"i4.energy/across/catmgw/at"
	"i4.energy/across/catmgw/httptunnel"
	"i4.energy/across/catmgw/logging"
	"i4.energy/across/catmgw/modem"
)

// Modem is the modem session the gateway drives. *modem.Modem satisfies it.
type Modem interface {
	httptunnel.Exchanger
	Execute(ctx context.Context, cmd at.Command, expect ...string) (string, error)
	Read(ctx context.Context, cmd at.Command, expect ...string) (string, error)
	WaitFor(ctx context.Context, timeout time.Duration, expect ...string) (string, error)
}

// Gateway brings the modem onto the network and obtains and refreshes the
// access credentials of the upstream service.
//
// Flows (Bootstrap, Ping, Connect, Refresh) are serialized: the modem has a
// single outstanding response wait, so only one flow may talk to it at a
// time. State, Status and Credentials may be called concurrently with a
// running flow.
type Gateway struct {
	modem  Modem
	tunnel *httptunnel.Tunnel
	config Config
	logger *slog.Logger
	creds  Credentials

	// flow holds a token while a flow talks to the modem
	flow chan struct{}

	mu       sync.RWMutex
	state    State
	userCode string

	registrationPolls metrics.Counter
	grantPolls        metrics.Counter
	refreshFailures   metrics.Counter
	stateGauge        metrics.Gauge
}

// Status is a snapshot of the gateway for operators.
type Status struct {
	State         string `json:"state"`
	Registration  string `json:"registration,omitempty"`
	UserCode      string `json:"user_code,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

func New(m Modem, config Config) *Gateway {
	config.setDefaults()
	r := config.Registry
	return &Gateway{
		modem: m,
		tunnel: httptunnel.New(m, httptunnel.Config{
			URL:      "https://" + config.APIHost,
			Timeout:  config.HTTPTimeout,
			Logger:   config.Logger,
			Registry: r,
		}),
		config:            config,
		logger:            config.Logger,
		flow:              make(chan struct{}, 1),
		registrationPolls: metrics.GetOrRegisterCounter("gateway.registration.polls", r),
		grantPolls:        metrics.GetOrRegisterCounter("gateway.grant.polls", r),
		refreshFailures:   metrics.GetOrRegisterCounter("gateway.refresh.failures", r),
		stateGauge:        metrics.GetOrRegisterGauge("gateway.state", r),
	}
}

func (g *Gateway) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// UserCode returns the code an operator must authorize while the connect
// flow polls for the grant, or "" when none is pending.
func (g *Gateway) UserCode() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.userCode
}

func (g *Gateway) Credentials() *Credentials {
	return &g.creds
}

func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Status{
		State:         g.state.String(),
		Registration:  g.creds.Extra(),
		UserCode:      g.userCode,
		Authenticated: g.creds.AccessToken() != "" && g.state.Authenticated(),
	}
}

func (g *Gateway) lockFlow(ctx context.Context) error {
	select {
	case g.flow <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) unlockFlow() {
	<-g.flow
}

func (g *Gateway) setState(ctx context.Context, s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
	g.stateGauge.Update(int64(s))
	g.logger.InfoContext(logging.ContextWithState(ctx, s.String()), "Gateway state changed")
}

func (g *Gateway) setUserCode(code string) {
	g.mu.Lock()
	g.userCode = code
	g.mu.Unlock()
}

type step struct {
	next State
	run  func(ctx context.Context) error
}

func (g *Gateway) execute(cmd at.Command) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := g.modem.Execute(ctx, cmd)
		return err
	}
}

func (g *Gateway) read(cmd at.Command) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := g.modem.Read(ctx, cmd)
		return err
	}
}

func (g *Gateway) write(p at.Params) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := g.modem.Write(ctx, p)
		return err
	}
}

func (g *Gateway) bootstrapSteps() []step {
	c := g.config
	return []step{
		{StateModemInitialized, g.awaitReady},
		{StateModemTested, g.execute(at.CmdTest)},
		{StateSimIdentified, g.execute(at.CmdICCID)},
		{StateTimeZoneConfigured, g.write(at.TimeZoneReporting{Mode: at.TimeZoneReportingExtended})},
		{StateAutoUpdateConfigured, g.write(at.TimeZoneUpdate{Mode: at.TimeZoneUpdateEnabled})},
		{StateScanSequenceConfigured, g.write(at.ExtendedConfig{Key: at.ScanSequence, Mode: c.ScanSequence, Effect: 1})},
		{StateScanModeConfigured, g.write(at.ExtendedConfig{Key: at.ScanMode, Mode: c.ScanMode, Effect: 1})},
		{StateRatModeConfigured, g.write(at.ExtendedConfig{Key: at.IoTOperationMode, Mode: c.IoTOperationMode, Effect: 1})},
		{StatePdpContextDefined, g.write(at.PDPContext{CID: 1, Type: at.PDPTypeIPv4v6, APN: c.APN})},
		{StateRegistrationEnabled, g.write(at.Registration{Mode: at.RegistrationEnabled})},
		{StateRegistered, g.pollRegistration},
		{StateCarrierQueried, g.read(at.CmdOperator)},
		{StateSignalQueried, g.execute(at.CmdSignalQuality)},
		{StateTimeSynced, g.write(at.NetworkTime{Mode: at.NetworkTimeLocal})},
	}
}

// Bootstrap waits for the modem to come up, configures it and blocks until
// it is registered on the network. Registration is polled without limit;
// cancel ctx to give up.
func (g *Gateway) Bootstrap(ctx context.Context) error {
	if err := g.lockFlow(ctx); err != nil {
		return err
	}
	defer g.unlockFlow()

	g.setState(ctx, StateStart)
	for i, s := range g.bootstrapSteps() {
		stepCtx := logging.ContextWithStep(ctx, i+1)
		if err := s.run(stepCtx); err != nil {
			return fmt.Errorf("bootstrap %s: %w", s.next, err)
		}
		g.setState(stepCtx, s.next)
	}
	return nil
}

// awaitReady waits for the APP RDY printed at power up. A modem that was
// already running when the gateway started never prints it again, so after
// the timeout a plain AT decides whether it is there.
func (g *Gateway) awaitReady(ctx context.Context) error {
	_, err := g.modem.WaitFor(ctx, g.config.ReadyTimeout, at.AppReady)
	if !errors.Is(err, modem.ErrTimeout) {
		return err
	}
	g.logger.WarnContext(ctx, "No APP RDY from modem, checking with AT", "waited", g.config.ReadyTimeout)
	_, err = g.modem.Execute(ctx, at.CmdTest)
	return err
}

// pollRegistration queries the registration until the modem is registered.
// Only a timed out query is retried; a stopped reader or a failed command
// ends the flow.
func (g *Gateway) pollRegistration(ctx context.Context) error {
	g.setState(ctx, StateRegistrationPolling)
	prefix := at.MustResponsePrefix(at.CmdRegistration)

	for {
		g.registrationPolls.Inc(1)
		payload, err := g.modem.Read(ctx, at.CmdRegistration, prefix, at.OK)
		switch {
		case err == nil:
			g.creds.setExtra(payload)
			if payload == RegisteredPayload {
				return nil
			}
			g.logger.InfoContext(ctx, "Not registered yet", "registration", payload, "retry_in", g.config.RegistrationInterval)
		case errors.Is(err, modem.ErrTimeout):
			g.logger.WarnContext(ctx, "Registration query timed out", "error", err)
		default:
			return err
		}

		if err := sleep(ctx, g.config.RegistrationInterval); err != nil {
			return err
		}
	}
}

// Ping asks the modem to ping the configured host over PDP context 1. The
// result arrives later as +QPING: URCs which are only logged.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.lockFlow(ctx); err != nil {
		return err
	}
	defer g.unlockFlow()

	if _, err := g.modem.Write(ctx, at.Ping{ContextID: 1, Host: g.config.PingHost}); err != nil {
		return fmt.Errorf("ping %s: %w", g.config.PingHost, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
