package credentials

import (
	"fmt"
	"net/http"
	"time"
)

// Endpoints are the upstream URLs the backends talk to. They normally derive
// from the tenant subdomain; tests substitute local servers.
type Endpoints struct {
	// AuthURL is the authorization page the user's browser is sent to.
	AuthURL string

	// TokenURL accepts JSON-encoded authorization_code and refresh_token grants.
	TokenURL string

	// IdentityURL is the "who am I" endpoint.
	IdentityURL string
}

// DefaultEndpoints returns the Zendesk endpoints for a tenant subdomain.
func DefaultEndpoints(subdomain string) Endpoints {
	base := fmt.Sprintf("https://%s.zendesk.com", subdomain)
	return Endpoints{
		AuthURL:     base + "/oauth/authorizations/new",
		TokenURL:    base + "/oauth/tokens",
		IdentityURL: base + "/api/v2/users/me.json",
	}
}

// options are shared construction knobs for both backends.
type options struct {
	httpClient *http.Client
	endpoints  *Endpoints
	now        func() time.Time
}

// Option configures a backend at construction time.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for identity and token endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithEndpoints overrides the tenant-derived endpoints.
func WithEndpoints(endpoints Endpoints) Option {
	return func(o *options) {
		o.endpoints = &endpoints
	}
}

func withHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func withEndpointsPtr(endpoints *Endpoints) Option {
	return func(o *options) {
		if endpoints != nil {
			o.endpoints = endpoints
		}
	}
}

func buildOptions(subdomain string, opts []Option) options {
	o := options{
		httpClient: &http.Client{Timeout: identityTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.endpoints == nil {
		endpoints := DefaultEndpoints(subdomain)
		o.endpoints = &endpoints
	}
	return o
}
