package credentials

import (
	"fmt"
	"time"
)

// NoCredentialsError is returned by Resolve when neither a persisted OAuth
// record nor static credentials are available.
type NoCredentialsError struct{}

func (e *NoCredentialsError) Error() string {
	return "no Zendesk credentials found; set up using:\n" +
		"  OAuth:     zdauth login-oauth\n" +
		"  API token: zdauth login\n" +
		"  Env vars:  ZENDESK_EMAIL, ZENDESK_TOKEN, ZENDESK_SUBDOMAIN"
}

// ConfigurationError indicates missing or unusable client configuration,
// typically absent OAuth client credentials.
type ConfigurationError struct {
	Subdomain string
}

func (e *ConfigurationError) Error() string {
	return "OAuth client credentials not configured; set ZENDESK_OAUTH_CLIENT_ID and " +
		"ZENDESK_OAUTH_CLIENT_SECRET, or add oauth_client_id and oauth_client_secret " +
		"to the config file; create an OAuth client at " +
		fmt.Sprintf("https://%s.zendesk.com/admin/apps-integrations/apis/apis/oauth_clients", e.Subdomain)
}

// NotAuthenticatedError indicates no OAuth token record exists; the interactive
// flow must be run first.
type NotAuthenticatedError struct {
	Location string
}

func (e *NotAuthenticatedError) Error() string {
	return fmt.Sprintf("no OAuth token found at %s; authenticate with: zdauth login-oauth", e.Location)
}

// AuthorizationDeniedError indicates the provider rejected the authorization
// request; no code exchange is attempted.
type AuthorizationDeniedError struct {
	Code        string
	Description string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization denied: %s", e.Code)
}

// CsrfMismatchError indicates the state parameter returned by the provider did
// not match the one generated for this flow attempt. Always fatal, never retried.
type CsrfMismatchError struct{}

func (e *CsrfMismatchError) Error() string {
	return "state mismatch in authorization callback, possible CSRF attack; aborting before token exchange"
}

// PortUnavailableError indicates no loopback port in the candidate range could
// be bound.
type PortUnavailableError struct {
	First, Last int
}

func (e *PortUnavailableError) Error() string {
	return fmt.Sprintf("no available ports in range %d-%d; close other applications using these ports, or use manual paste mode (--manual)", e.First, e.Last)
}

// AuthorizationTimeoutError indicates no callback arrived before the flow
// timeout elapsed. The listener is closed; the flow is not retried.
type AuthorizationTimeoutError struct {
	Timeout time.Duration
}

func (e *AuthorizationTimeoutError) Error() string {
	return fmt.Sprintf("no authorization callback received within %s; run the flow again", e.Timeout)
}

// TokenExchangeFailedError indicates the token endpoint rejected the
// authorization-code exchange.
type TokenExchangeFailedError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *TokenExchangeFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("token exchange failed: %s", e.Detail)
}

func (e *TokenExchangeFailedError) Unwrap() error { return e.Err }

// RefreshFailedError indicates the refresh grant was rejected or could not be
// attempted. The stale record is never used as a fallback; the caller must
// re-authenticate.
type RefreshFailedError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *RefreshFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token refresh failed (%d): %s; re-authenticate with: zdauth login-oauth", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("token refresh failed: %s; re-authenticate with: zdauth login-oauth", e.Detail)
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// IdentityValidationError indicates the identity endpoint returned a non-2xx
// response for the current header.
type IdentityValidationError struct {
	StatusCode int
}

func (e *IdentityValidationError) Error() string {
	return fmt.Sprintf("credential validation failed (%d)", e.StatusCode)
}
