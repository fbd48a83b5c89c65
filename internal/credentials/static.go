package credentials

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
)

// StaticBackend authenticates with a Zendesk API token using Basic auth in the
// form "{email}/token:{token}". It has no expiry and no refresh; the header is
// a pure function of immutable fields, so it is safe under arbitrary concurrency.
type StaticBackend struct {
	email     string
	token     string
	subdomain string

	httpClient *http.Client
	endpoints  Endpoints
}

// Compile-time check to ensure StaticBackend implements Backend
var _ Backend = (*StaticBackend)(nil)

// NewStaticBackend creates a StaticBackend from explicit credentials.
func NewStaticBackend(email, token, subdomain string, opts ...Option) (*StaticBackend, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}
	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}
	if subdomain == "" {
		return nil, fmt.Errorf("subdomain cannot be empty")
	}

	o := buildOptions(subdomain, opts)

	return &StaticBackend{
		email:      email,
		token:      token,
		subdomain:  subdomain,
		httpClient: o.httpClient,
		endpoints:  *o.endpoints,
	}, nil
}

// Subdomain returns the tenant the credential is valid for.
func (b *StaticBackend) Subdomain() string {
	return b.subdomain
}

// AuthHeader returns the Basic auth header for the email/token pair.
func (b *StaticBackend) AuthHeader(ctx context.Context) (http.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(b.email + "/token:" + b.token))
	header := http.Header{}
	header.Set("Authorization", "Basic "+encoded)
	return header, nil
}

// Validate checks the credentials against the identity endpoint.
func (b *StaticBackend) Validate(ctx context.Context) (*UserIdentity, error) {
	header, err := b.AuthHeader(ctx)
	if err != nil {
		return nil, err
	}
	return fetchIdentity(ctx, b.httpClient, b.endpoints.IdentityURL, header)
}
