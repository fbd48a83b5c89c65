package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/florianilch/zdauth/internal/tokenstore"
)

// fakeTokenEndpoint is a stand-in token endpoint. It asserts the JSON request
// format on every call, records the decoded bodies, and serves a fixed response.
type fakeTokenEndpoint struct {
	t *testing.T

	status int // 0 means 200
	body   string
	delay  time.Duration

	mu    sync.Mutex
	calls []map[string]string
}

func (f *fakeTokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		f.t.Errorf("token request Content-Type = %q, want application/json", ct)
	}
	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		f.t.Errorf("token request body is not a JSON object: %v", err)
	}

	f.mu.Lock()
	f.calls = append(f.calls, fields)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	_, _ = io.WriteString(w, f.body)
}

func (f *fakeTokenEndpoint) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTokenEndpoint) call(i int) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func newTestFileStore(t *testing.T) *tokenstore.FileStore {
	t.Helper()
	store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func newTestOAuthBackend(t *testing.T, store tokenstore.TokenStore, serverURL string) *OAuthBackend {
	t.Helper()
	backend, err := NewOAuthBackend(OAuthConfig{
		Subdomain:    "acme",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Store:        store,
		Endpoints: &Endpoints{
			AuthURL:     serverURL + "/oauth/authorizations/new",
			TokenURL:    serverURL + "/oauth/tokens",
			IdentityURL: serverURL + "/api/v2/users/me.json",
		},
	})
	if err != nil {
		t.Fatalf("NewOAuthBackend() error = %v", err)
	}
	return backend
}

func seedRecord(t *testing.T, store tokenstore.TokenStore, record *tokenstore.Record) {
	t.Helper()
	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("seeding record: %v", err)
	}
}

func TestOAuthBackendAuthHeaderFresh(t *testing.T) {
	endpoint := &fakeTokenEndpoint{t: t}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	store := newTestFileStore(t)
	seedRecord(t, store, &tokenstore.Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		TokenType:    "Bearer",
	})
	backend := newTestOAuthBackend(t, store, server.URL)

	header, err := backend.AuthHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthHeader() error = %v", err)
	}
	if got := header.Get("Authorization"); got != "Bearer at-1" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer at-1")
	}
	if n := endpoint.callCount(); n != 0 {
		t.Errorf("token endpoint called %d times for a fresh record, want 0", n)
	}
}

func TestOAuthBackendAuthHeaderRefreshesStale(t *testing.T) {
	endpoint := &fakeTokenEndpoint{
		t:    t,
		body: `{"access_token": "at-2", "refresh_token": "rt-2", "token_type": "Bearer", "expires_in": 3600, "scope": "read write"}`,
	}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	store := newTestFileStore(t)
	seedRecord(t, store, &tokenstore.Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(30 * time.Second), // inside the refresh margin
		TokenType:    "Bearer",
	})
	backend := newTestOAuthBackend(t, store, server.URL)

	before := time.Now()
	header, err := backend.AuthHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthHeader() error = %v", err)
	}
	if got := header.Get("Authorization"); got != "Bearer at-2" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer at-2")
	}

	if n := endpoint.callCount(); n != 1 {
		t.Fatalf("token endpoint called %d times, want 1", n)
	}
	call := endpoint.call(0)
	if call["grant_type"] != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", call["grant_type"])
	}
	if call["refresh_token"] != "rt-1" {
		t.Errorf("refresh_token = %q, want rt-1", call["refresh_token"])
	}
	if call["client_id"] != "client-id" || call["client_secret"] != "client-secret" {
		t.Errorf("client credentials = %q/%q, want client-id/client-secret", call["client_id"], call["client_secret"])
	}

	// The whole record is replaced on disk, both tokens rotated.
	record, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() after refresh error = %v", err)
	}
	if record.AccessToken != "at-2" || record.RefreshToken != "rt-2" {
		t.Errorf("persisted record = %s/%s, want at-2/rt-2", record.AccessToken, record.RefreshToken)
	}
	lifetime := record.ExpiresAt.Sub(before)
	if lifetime < 3500*time.Second || lifetime > 3700*time.Second {
		t.Errorf("persisted expiry %v from now, want about 3600s", lifetime)
	}
}

func TestOAuthBackendRefreshKeepsRefreshTokenWhenOmitted(t *testing.T) {
	endpoint := &fakeTokenEndpoint{
		t:    t,
		body: `{"access_token": "at-2", "token_type": "Bearer", "expires_in": 3600}`,
	}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	store := newTestFileStore(t)
	seedRecord(t, store, &tokenstore.Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		TokenType:    "Bearer",
	})
	backend := newTestOAuthBackend(t, store, server.URL)

	if _, err := backend.AuthHeader(context.Background()); err != nil {
		t.Fatalf("AuthHeader() error = %v", err)
	}

	record, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if record.AccessToken != "at-2" {
		t.Errorf("AccessToken = %q, want at-2", record.AccessToken)
	}
	if record.RefreshToken != "rt-1" {
		t.Errorf("RefreshToken = %q, want the previous rt-1 retained", record.RefreshToken)
	}
}

func TestOAuthBackendRefreshFailure(t *testing.T) {
	endpoint := &fakeTokenEndpoint{
		t:      t,
		status: http.StatusBadRequest,
		body:   `{"error": "invalid_grant", "error_description": "refresh token revoked"}`,
	}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	store := newTestFileStore(t)
	seedRecord(t, store, &tokenstore.Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		TokenType:    "Bearer",
	})
	backend := newTestOAuthBackend(t, store, server.URL)

	_, err := backend.AuthHeader(context.Background())
	var refreshErr *RefreshFailedError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("AuthHeader() error = %v, want RefreshFailedError", err)
	}
	if refreshErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", refreshErr.StatusCode, http.StatusBadRequest)
	}

	// The stored record is never modified by a failed refresh.
	record, loadErr := store.Load(context.Background())
	if loadErr != nil {
		t.Fatalf("Load() error = %v", loadErr)
	}
	if record.AccessToken != "at-1" || record.RefreshToken != "rt-1" {
		t.Errorf("record after failed refresh = %s/%s, want at-1/rt-1 untouched", record.AccessToken, record.RefreshToken)
	}

	// The stale record is not served as a fallback on later calls either.
	if _, err := backend.AuthHeader(context.Background()); !errors.As(err, &refreshErr) {
		t.Errorf("second AuthHeader() error = %v, want RefreshFailedError", err)
	}
}

func TestOAuthBackendConcurrentRefreshSingleFlight(t *testing.T) {
	endpoint := &fakeTokenEndpoint{
		t:     t,
		body:  `{"access_token": "at-2", "refresh_token": "rt-2", "token_type": "Bearer", "expires_in": 3600}`,
		delay: 200 * time.Millisecond,
	}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	store := newTestFileStore(t)
	seedRecord(t, store, &tokenstore.Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(30 * time.Second),
		TokenType:    "Bearer",
	})
	backend := newTestOAuthBackend(t, store, server.URL)

	const callers = 2
	headers := make(chan string, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			header, err := backend.AuthHeader(context.Background())
			if err != nil {
				errs <- err
				return
			}
			headers <- header.Get("Authorization")
		}()
	}
	wg.Wait()
	close(headers)
	close(errs)

	for err := range errs {
		t.Fatalf("AuthHeader() error = %v", err)
	}
	for header := range headers {
		if header != "Bearer at-2" {
			t.Errorf("Authorization = %q, want %q", header, "Bearer at-2")
		}
	}
	if n := endpoint.callCount(); n != 1 {
		t.Errorf("token endpoint called %d times for concurrent callers, want 1", n)
	}
}

func TestOAuthBackendAuthHeaderNotAuthenticated(t *testing.T) {
	store := newTestFileStore(t)
	backend := newTestOAuthBackend(t, store, "http://127.0.0.1:0")

	_, err := backend.AuthHeader(context.Background())
	var notAuthErr *NotAuthenticatedError
	if !errors.As(err, &notAuthErr) {
		t.Fatalf("AuthHeader() error = %v, want NotAuthenticatedError", err)
	}
	if notAuthErr.Location != store.Location() {
		t.Errorf("Location = %q, want %q", notAuthErr.Location, store.Location())
	}
}

func TestOAuthBackendRefreshWithoutRefreshToken(t *testing.T) {
	endpoint := &fakeTokenEndpoint{t: t}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	store := newTestFileStore(t)
	seedRecord(t, store, &tokenstore.Record{
		AccessToken: "at-1",
		ExpiresAt:   time.Now().Add(-time.Minute),
		TokenType:   "Bearer",
	})
	backend := newTestOAuthBackend(t, store, server.URL)

	_, err := backend.AuthHeader(context.Background())
	var refreshErr *RefreshFailedError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("AuthHeader() error = %v, want RefreshFailedError", err)
	}
	if n := endpoint.callCount(); n != 0 {
		t.Errorf("token endpoint called %d times without a refresh token, want 0", n)
	}
}

func TestOAuthBackendRefreshMissingClientCredentials(t *testing.T) {
	store := newTestFileStore(t)
	seedRecord(t, store, &tokenstore.Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		TokenType:    "Bearer",
	})

	backend, err := NewOAuthBackend(OAuthConfig{Subdomain: "acme", Store: store})
	if err != nil {
		t.Fatalf("NewOAuthBackend() error = %v", err)
	}

	_, err = backend.AuthHeader(context.Background())
	var configErr *ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("AuthHeader() error = %v, want ConfigurationError", err)
	}
}

func TestOAuthBackendLogout(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	seedRecord(t, store, &tokenstore.Record{
		AccessToken: "at-1",
		ExpiresAt:   time.Now().Add(time.Hour),
		TokenType:   "Bearer",
	})
	backend := newTestOAuthBackend(t, store, "http://127.0.0.1:0")

	if _, err := backend.AuthHeader(ctx); err != nil {
		t.Fatalf("AuthHeader() before logout error = %v", err)
	}

	removed, err := backend.Logout(ctx)
	if err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if !removed {
		t.Error("first Logout() = false, want true")
	}

	removed, err = backend.Logout(ctx)
	if err != nil {
		t.Fatalf("second Logout() error = %v", err)
	}
	if removed {
		t.Error("second Logout() = true, want false")
	}

	// The in-memory cache must not outlive the deleted record.
	var notAuthErr *NotAuthenticatedError
	if _, err := backend.AuthHeader(ctx); !errors.As(err, &notAuthErr) {
		t.Errorf("AuthHeader() after logout error = %v, want NotAuthenticatedError", err)
	}
}

func TestOAuthBackendHasToken(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	backend := newTestOAuthBackend(t, store, "http://127.0.0.1:0")

	if backend.HasToken(ctx) {
		t.Error("HasToken() = true for empty store, want false")
	}

	seedRecord(t, store, &tokenstore.Record{
		AccessToken: "at-1",
		ExpiresAt:   time.Now().Add(-time.Hour), // expired records still count
		TokenType:   "Bearer",
	})
	if !backend.HasToken(ctx) {
		t.Error("HasToken() = false for stored record, want true")
	}
}
