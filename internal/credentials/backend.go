package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/florianilch/zdauth/internal/tokenstore"
)

// DefaultScopes grants broad access. Zendesk supports granular scopes like
// "tickets:read", but for a personal tool broad scopes are simpler.
const DefaultScopes = "read write"

const identityTimeout = 30 * time.Second

// UserIdentity is the authenticated user as reported by the identity endpoint.
type UserIdentity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Backend produces request-authorization material for one Zendesk tenant.
// Implementations are safe for concurrent use.
type Backend interface {
	// Subdomain returns the tenant the credential is valid for.
	Subdomain() string

	// AuthHeader returns headers with exactly one Authorization entry, computed
	// fresh on every call. OAuth backends refresh first when the record is
	// close to expiry.
	AuthHeader(ctx context.Context) (http.Header, error)

	// Validate performs a live round trip to the identity endpoint using the
	// current header.
	Validate(ctx context.Context) (*UserIdentity, error)
}

// ResolverConfig carries everything Resolve needs. Values are threaded in
// explicitly; the package performs no environment lookups of its own.
type ResolverConfig struct {
	Subdomain string

	// Store holds the persisted OAuth token record, if any.
	Store tokenstore.TokenStore

	// OAuth client credentials, needed for refresh.
	ClientID     string
	ClientSecret string
	Scopes       string

	// Static credentials.
	Email    string
	APIToken string

	// HTTPClient overrides the transport for identity and token endpoint
	// calls. Nil means http.DefaultClient semantics.
	HTTPClient *http.Client

	// Endpoints overrides the tenant-derived endpoints (tests).
	Endpoints *Endpoints
}

// Resolve selects one backend by precedence:
//  1. a structurally valid persisted OAuth record binds an OAuthBackend
//     (freshness is checked on first AuthHeader call, not here),
//  2. static email + API token + subdomain bind a StaticBackend,
//  3. otherwise a NoCredentialsError naming both setup paths.
//
// Resolve is read-only and has no side effects.
func Resolve(ctx context.Context, cfg ResolverConfig) (Backend, error) {
	if cfg.Store != nil && cfg.Subdomain != "" {
		record, err := cfg.Store.Load(ctx)
		if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
			return nil, fmt.Errorf("loading token record: %w", err)
		}
		if err == nil && record.Valid() {
			return NewOAuthBackend(OAuthConfig{
				Subdomain:    cfg.Subdomain,
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Scopes:       cfg.Scopes,
				Store:        cfg.Store,
				HTTPClient:   cfg.HTTPClient,
				Endpoints:    cfg.Endpoints,
			})
		}
	}

	if cfg.Email != "" && cfg.APIToken != "" && cfg.Subdomain != "" {
		return NewStaticBackend(cfg.Email, cfg.APIToken, cfg.Subdomain,
			withHTTPClient(cfg.HTTPClient), withEndpointsPtr(cfg.Endpoints))
	}

	return nil, &NoCredentialsError{}
}

// fetchIdentity calls the identity endpoint with the given header and maps the
// response. Shared by both backends.
func fetchIdentity(ctx context.Context, client *http.Client, identityURL string, header http.Header) (*UserIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identityURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building identity request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling identity endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &IdentityValidationError{StatusCode: resp.StatusCode}
	}

	var payload struct {
		User UserIdentity `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding identity response: %w", err)
	}
	return &payload.User, nil
}
