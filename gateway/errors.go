package gateway

import "errors"

var (
	// ErrProtocolViolation is returned when the service answers with an
	// unexpected error value or leaves out a field a successful response must
	// carry. The current connect attempt is over; retrying is up to the caller.
	ErrProtocolViolation = errors.New("oauth protocol violation")

	// ErrRefreshFailed is returned when a token refresh did not yield a new
	// access token.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrNotBootstrapped is returned when the connect flow is started before
	// the network bootstrap completed.
	ErrNotBootstrapped = errors.New("network bootstrap not completed")

	// ErrNotAuthenticated is returned when a refresh is requested before the
	// gateway obtained a refresh token.
	ErrNotAuthenticated = errors.New("gateway not authenticated")

	// ErrMissingSetting is returned by Connect when a setting the service
	// needs was left empty. Retrying cannot help.
	ErrMissingSetting = errors.New("gateway: required setting missing")
)
