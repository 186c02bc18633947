package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"i4.energy/across/catmgw/httptunnel"
)

const (
	pathClientToken  = "/v1/auth/token/api"
	pathOwner        = "/v1/owner/"
	pathDeviceAuth   = "/v1/gateway/device-authorize"
	pathRegistry     = "/v2/gateway/registry"
	pathToken        = "/v2/gateway/token"
	pathRefreshToken = "/v1/gateway/refresh?refresh_token="

	// errAuthorizationPending is the token endpoint's answer until the user
	// code has been authorized.
	errAuthorizationPending = "authorization_pending"
)

// document holds the fields of any service response the flows look at.
type document struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	DeviceCode   string          `json:"device_code"`
	UserCode     string          `json:"user_code"`
	Error        string          `json:"error"`
	Data         json.RawMessage `json:"data"`
}

type gatewaysBody struct {
	Gateways []string `json:"gateways"`
}

type registryBody struct {
	GatewayID string `json:"gatewayId"`
	UserCode  string `json:"userCode"`
}

type tokenBody struct {
	GatewayID  string `json:"gatewayId"`
	DeviceCode string `json:"deviceCode"`
}

// Connect runs the device authorization flow: client token, gateway put,
// device codes, gateway registration and token polling. It blocks until the
// user code is authorized; cancel ctx to give up. Bootstrap must have
// completed.
func (g *Gateway) Connect(ctx context.Context) error {
	if err := g.config.validateOAuth(); err != nil {
		return err
	}

	if err := g.lockFlow(ctx); err != nil {
		return err
	}
	defer g.unlockFlow()

	if !g.State().Bootstrapped() {
		return ErrNotBootstrapped
	}

	if err := g.tunnel.Configure(ctx); err != nil {
		return err
	}
	g.setState(ctx, StateUrlConfigured)

	clientToken, err := g.clientToken(ctx)
	if err != nil {
		return fmt.Errorf("client token: %w", err)
	}
	g.setState(ctx, StateClientTokenObtained)

	if err := g.putGateway(ctx, clientToken); err != nil {
		return fmt.Errorf("put gateway: %w", err)
	}
	g.setState(ctx, StateGatewayPut)

	deviceCode, userCode, err := g.deviceCodes(ctx)
	if err != nil {
		return fmt.Errorf("device codes: %w", err)
	}
	g.setUserCode(userCode)
	defer g.setUserCode("")
	g.logger.InfoContext(ctx, "Gateway awaiting authorization", "user_code", userCode, "gateway", g.config.GatewayName)
	g.setState(ctx, StateDeviceCodesObtained)

	if err := g.registerGateway(ctx, userCode); err != nil {
		return fmt.Errorf("register gateway: %w", err)
	}
	g.setState(ctx, StateGatewayRegistered)

	if err := g.pollGrant(ctx, deviceCode); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	g.setState(ctx, StateAuthenticated)
	return nil
}

// Refresh exchanges the stored refresh token for a new access token. It does
// not retry; on failure the previous access token stays in place.
func (g *Gateway) Refresh(ctx context.Context) error {
	if err := g.lockFlow(ctx); err != nil {
		return err
	}
	defer g.unlockFlow()

	refreshToken := g.creds.RefreshToken()
	if refreshToken == "" {
		return ErrNotAuthenticated
	}
	g.setState(ctx, StateRefreshRequested)

	doc, err := g.exchange(ctx, httptunnel.MethodPost, pathRefreshToken+url.QueryEscape(refreshToken), nil, nil)
	if err != nil {
		g.refreshFailures.Inc(1)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if doc.AccessToken == "" {
		g.refreshFailures.Inc(1)
		return fmt.Errorf("%w: no access_token in response", ErrRefreshFailed)
	}

	if doc.RefreshToken != "" {
		g.creds.setTokens(doc.AccessToken, doc.RefreshToken)
	} else {
		g.creds.setAccessToken(doc.AccessToken)
	}
	g.setState(ctx, StateRefreshApplied)
	return nil
}

func (g *Gateway) clientToken(ctx context.Context) (string, error) {
	doc, err := g.exchange(ctx, httptunnel.MethodPost, pathClientToken,
		[]string{httptunnel.Header("Authorization", g.config.APIKey)}, nil)
	if err != nil {
		return "", err
	}
	if doc.AccessToken == "" {
		return "", fmt.Errorf("%w: no access_token in client token response", ErrProtocolViolation)
	}
	return doc.AccessToken, nil
}

func (g *Gateway) putGateway(ctx context.Context, clientToken string) error {
	doc, err := g.exchange(ctx, httptunnel.MethodPut, pathOwner+g.config.OwnerID+"/gateway",
		[]string{httptunnel.Header("Authorization", "Bearer "+clientToken)},
		gatewaysBody{Gateways: []string{g.config.GatewayName}})
	if err != nil {
		return err
	}
	g.logger.DebugContext(ctx, "Gateway put", "data", string(doc.Data))
	return nil
}

func (g *Gateway) deviceCodes(ctx context.Context) (deviceCode, userCode string, err error) {
	doc, err := g.exchange(ctx, httptunnel.MethodPost, pathDeviceAuth, nil, nil)
	if err != nil {
		return "", "", err
	}
	if doc.DeviceCode == "" || doc.UserCode == "" {
		return "", "", fmt.Errorf("%w: device_code or user_code missing", ErrProtocolViolation)
	}
	return doc.DeviceCode, doc.UserCode, nil
}

func (g *Gateway) registerGateway(ctx context.Context, userCode string) error {
	_, err := g.exchange(ctx, httptunnel.MethodPost, pathRegistry, nil,
		registryBody{GatewayID: g.config.GatewayName, UserCode: userCode})
	return err
}

// pollGrant posts the device code until the service hands out tokens. Only
// authorization_pending is retried.
func (g *Gateway) pollGrant(ctx context.Context, deviceCode string) error {
	g.setState(ctx, StatePollingGrant)
	body := tokenBody{GatewayID: g.config.GatewayName, DeviceCode: deviceCode}

	for {
		g.grantPolls.Inc(1)
		doc, err := g.exchange(ctx, httptunnel.MethodPost, pathToken, nil, body)
		if err != nil {
			return err
		}

		switch {
		case doc.AccessToken != "":
			if doc.RefreshToken == "" {
				return fmt.Errorf("%w: access_token without refresh_token", ErrProtocolViolation)
			}
			g.creds.setTokens(doc.AccessToken, doc.RefreshToken)
			return nil
		case doc.Error == errAuthorizationPending:
			g.logger.InfoContext(ctx, "Authorization pending", "user_code", g.UserCode(), "retry_in", g.config.GrantInterval)
		case doc.Error == "":
			return fmt.Errorf("%w: neither access_token nor error in token response", ErrProtocolViolation)
		default:
			return fmt.Errorf("%w: token endpoint answered %q", ErrProtocolViolation, doc.Error)
		}

		if err := sleep(ctx, g.config.GrantInterval); err != nil {
			return err
		}
	}
}

// exchange sends one request to the service and decodes the JSON document
// of the response. A response without a document decodes to an empty one.
func (g *Gateway) exchange(ctx context.Context, method httptunnel.Method, path string, headers []string, body any) (*document, error) {
	all := []string{httptunnel.Header("Host", g.config.APIHost)}
	all = append(all, headers...)

	var text string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		text = string(b)
		all = append(all, httptunnel.JSONHeaders(text)...)
	}

	request, err := httptunnel.BuildRequest(method, path, all, text)
	if err != nil {
		return nil, err
	}
	resp, err := g.tunnel.Do(ctx, method, request)
	if err != nil {
		return nil, err
	}

	doc := &document{}
	if resp.Body == nil {
		return doc, nil
	}
	if err := json.Unmarshal(resp.Body, doc); err != nil {
		return nil, errors.Join(ErrProtocolViolation, fmt.Errorf("decode response of %s %s: %w", method, path, err))
	}
	return doc, nil
}
