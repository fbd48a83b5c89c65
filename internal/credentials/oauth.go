package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/zdauth/internal/tokenstore"
)

const (
	// refreshMargin is how long before expiry a record is treated as stale.
	refreshMargin = 60 * time.Second

	// defaultTokenLifetime applies when the provider omits expires_in.
	defaultTokenLifetime = 7200 * time.Second

	// tokenEndpointTimeout bounds exchange and refresh calls.
	tokenEndpointTimeout = 30 * time.Second
)

// OAuthConfig configures an OAuthBackend.
type OAuthConfig struct {
	Subdomain    string
	ClientID     string
	ClientSecret string

	// Scopes requested during authorization, space-separated. Defaults to
	// DefaultScopes.
	Scopes string

	// Store persists the token record. Required.
	Store tokenstore.TokenStore

	// HTTPClient overrides the transport for upstream calls (optional).
	HTTPClient *http.Client

	// Endpoints overrides the tenant-derived endpoints (optional).
	Endpoints *Endpoints
}

// OAuthBackend authenticates with a persisted OAuth 2.0 token record, refreshing
// it before expiry. Refresh replaces the whole record: Zendesk rotates both
// tokens on each use.
type OAuthBackend struct {
	subdomain    string
	clientID     string
	clientSecret string
	scopes       string
	store        tokenstore.TokenStore
	httpClient   *http.Client
	endpoints    Endpoints
	now          func() time.Time

	mu     sync.Mutex
	record *tokenstore.Record

	refreshGroup singleflight.Group
}

// Compile-time check to ensure OAuthBackend implements Backend
var _ Backend = (*OAuthBackend)(nil)

// NewOAuthBackend creates an OAuthBackend. No I/O is performed; the record is
// loaded lazily on first use.
func NewOAuthBackend(cfg OAuthConfig, opts ...Option) (*OAuthBackend, error) {
	if cfg.Subdomain == "" {
		return nil, fmt.Errorf("subdomain cannot be empty")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("token store cannot be nil")
	}

	all := append([]Option{withHTTPClient(cfg.HTTPClient), withEndpointsPtr(cfg.Endpoints)}, opts...)
	o := buildOptions(cfg.Subdomain, all)

	scopes := cfg.Scopes
	if scopes == "" {
		scopes = DefaultScopes
	}

	return &OAuthBackend{
		subdomain:    cfg.Subdomain,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       scopes,
		store:        cfg.Store,
		httpClient:   o.httpClient,
		endpoints:    *o.endpoints,
		now:          o.now,
	}, nil
}

// Subdomain returns the tenant the credential is valid for.
func (b *OAuthBackend) Subdomain() string {
	return b.subdomain
}

// HasToken reports whether a structurally valid record exists. It does not
// assess freshness.
func (b *OAuthBackend) HasToken(ctx context.Context) bool {
	b.mu.Lock()
	cached := b.record
	b.mu.Unlock()
	if cached.Valid() {
		return true
	}

	record, err := b.store.Load(ctx)
	return err == nil && record.Valid()
}

// AuthHeader returns a Bearer header for the current record, refreshing first
// when the record is within the expiry margin. The header is never served from
// a cache that could outlive a refresh.
func (b *OAuthBackend) AuthHeader(ctx context.Context) (http.Header, error) {
	record, err := b.currentRecord(ctx)
	if err != nil {
		return nil, err
	}

	if record.Stale(b.now(), refreshMargin) {
		record, err = b.Refresh(ctx)
		if err != nil {
			return nil, err
		}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+record.AccessToken)
	return header, nil
}

// Validate checks the current header against the identity endpoint.
func (b *OAuthBackend) Validate(ctx context.Context) (*UserIdentity, error) {
	header, err := b.AuthHeader(ctx)
	if err != nil {
		return nil, err
	}
	return fetchIdentity(ctx, b.httpClient, b.endpoints.IdentityURL, header)
}

// Refresh exchanges the refresh token for a new record and persists it,
// replacing the old record entirely. Concurrent callers share a single
// in-flight refresh; each observes the result of that one call. On failure the
// stored record is left untouched and the caller must re-authenticate.
func (b *OAuthBackend) Refresh(ctx context.Context) (*tokenstore.Record, error) {
	result, err, _ := b.refreshGroup.Do("refresh", func() (any, error) {
		b.mu.Lock()
		current := b.record
		b.mu.Unlock()

		// A caller that raced an earlier refresh finds a fresh record here and
		// must not trigger another upstream call.
		if current.Valid() && !current.Stale(b.now(), refreshMargin) {
			return current, nil
		}

		return b.doRefresh(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	return result.(*tokenstore.Record), nil
}

// doRefresh performs the single outbound refresh call.
func (b *OAuthBackend) doRefresh(ctx context.Context, current *tokenstore.Record) (*tokenstore.Record, error) {
	if current == nil || current.RefreshToken == "" {
		return nil, &RefreshFailedError{Detail: "no refresh token in stored record"}
	}
	if b.clientID == "" || b.clientSecret == "" {
		return nil, &ConfigurationError{Subdomain: b.subdomain}
	}

	// Seed the source with an already-expired token so it always performs the
	// refresh grant instead of reusing the seed.
	seed := &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       b.now().Add(-time.Hour),
	}

	cfg := b.oauth2Config("")
	token, err := cfg.TokenSource(b.tokenEndpointContext(ctx), seed).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &RefreshFailedError{
				StatusCode: retrieveErr.Response.StatusCode,
				Detail:     strings.TrimSpace(string(retrieveErr.Body)),
				Err:        err,
			}
		}
		return nil, &RefreshFailedError{Detail: err.Error(), Err: err}
	}

	record := b.recordFromToken(token, current)
	if err := b.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("persisting refreshed token record: %w", err)
	}

	b.mu.Lock()
	b.record = record
	b.mu.Unlock()

	slog.DebugContext(ctx, "refreshed OAuth token",
		"subdomain", b.subdomain,
		"expires_at", record.ExpiresAt,
	)
	return record, nil
}

// Logout deletes the persisted record. Idempotent; reports whether anything was
// removed. No remote revocation is performed.
func (b *OAuthBackend) Logout(ctx context.Context) (bool, error) {
	b.mu.Lock()
	b.record = nil
	b.mu.Unlock()

	return b.store.Delete(ctx)
}

// currentRecord returns the cached record, loading it from the store on first use.
func (b *OAuthBackend) currentRecord(ctx context.Context) (*tokenstore.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.record.Valid() {
		return b.record, nil
	}

	record, err := b.store.Load(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, &NotAuthenticatedError{Location: b.store.Location()}
	}
	if err != nil {
		return nil, fmt.Errorf("loading token record: %w", err)
	}
	if !record.Valid() {
		return nil, &NotAuthenticatedError{Location: b.store.Location()}
	}

	b.record = record
	return record, nil
}

// recordFromToken builds a replacement record from a token endpoint response.
// A returned refresh token always supersedes the previous one; only when the
// provider omits it is the prior refresh token retained.
func (b *OAuthBackend) recordFromToken(token *oauth2.Token, previous *tokenstore.Record) *tokenstore.Record {
	record := &tokenstore.Record{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		TokenType:    token.Type(),
		Scope:        b.scopes,
	}

	if record.RefreshToken == "" && previous != nil {
		record.RefreshToken = previous.RefreshToken
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = b.now().Add(defaultTokenLifetime)
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		record.Scope = scope
	} else if previous != nil && previous.Scope != "" {
		record.Scope = previous.Scope
	}

	return record
}

// oauth2Config builds the oauth2 client configuration for this tenant.
// AuthStyleInParams puts the client credentials in the request body, where the
// JSON transport picks them up.
func (b *OAuthBackend) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     b.clientID,
		ClientSecret: b.clientSecret,
		Scopes:       strings.Fields(b.scopes),
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   b.endpoints.AuthURL,
			TokenURL:  b.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// tokenEndpointContext injects an HTTP client that rewrites token endpoint
// requests to JSON. The oauth2 package picks up custom clients via context.
func (b *OAuthBackend) tokenEndpointContext(ctx context.Context) context.Context {
	base := http.DefaultTransport
	if b.httpClient != nil && b.httpClient.Transport != nil {
		base = b.httpClient.Transport
	}
	client := &http.Client{
		Timeout:   tokenEndpointTimeout,
		Transport: &jsonTokenTransport{base: base},
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
