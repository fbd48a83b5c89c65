package app

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/florianilch/zdauth/internal/tokenstore"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		LogFormat: LogFormatText,
		Subdomain: "acme",
		Email:     "user@example.com",
		Token:     "secret",
		Scopes:    "read write",
		Auth: AuthConfig{
			Storage: TokenStorageTypeFile,
			File:    filepath.Join(t.TempDir(), "token.json"),
		},
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}

	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.Scopes != "read write" {
		t.Errorf("Scopes = %q, want %q", cfg.Scopes, "read write")
	}
	if cfg.Auth.Storage != TokenStorageTypeFile {
		t.Errorf("Auth.Storage = %q, want %q", cfg.Auth.Storage, TokenStorageTypeFile)
	}
	if !strings.HasSuffix(cfg.Auth.File, filepath.Join("zdauth", "oauth_token.json")) {
		t.Errorf("Auth.File = %q, want default under the user config dir", cfg.Auth.File)
	}
}

func TestConfigApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := validConfig(t)
	explicitFile := cfg.Auth.File
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults() error = %v", err)
	}
	if cfg.Auth.File != explicitFile {
		t.Errorf("Auth.File = %q, want explicit %q preserved", cfg.Auth.File, explicitFile)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.LogFormat = "yaml" },
			wantErr: true,
		},
		{
			name:    "invalid email",
			mutate:  func(c *Config) { c.Email = "not-an-email" },
			wantErr: true,
		},
		{
			name:    "invalid subdomain",
			mutate:  func(c *Config) { c.Subdomain = "has spaces" },
			wantErr: true,
		},
		{
			name:    "invalid storage type",
			mutate:  func(c *Config) { c.Auth.Storage = "vault" },
			wantErr: true,
		},
		{
			name:    "file storage without path",
			mutate:  func(c *Config) { c.Auth.File = "" },
			wantErr: true,
		},
		{
			name: "keyring storage without user",
			mutate: func(c *Config) {
				c.Auth.Storage = TokenStorageTypeKeyring
				c.Auth.File = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthConfigNewTokenStore(t *testing.T) {
	auth := &AuthConfig{
		Storage: TokenStorageTypeFile,
		File:    filepath.Join(t.TempDir(), "token.json"),
	}
	store, err := auth.NewTokenStore()
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	if _, ok := store.(*tokenstore.FileStore); !ok {
		t.Errorf("NewTokenStore() = %T, want *tokenstore.FileStore", store)
	}

	auth = &AuthConfig{Storage: "vault"}
	if _, err := auth.NewTokenStore(); err == nil {
		t.Error("NewTokenStore() succeeded for unsupported storage type")
	}
}

func TestConfigResolverConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.OAuthClientID = "client-id"
	cfg.OAuthClientSecret = "client-secret"

	resolverCfg, err := cfg.ResolverConfig()
	if err != nil {
		t.Fatalf("ResolverConfig() error = %v", err)
	}

	if resolverCfg.Subdomain != cfg.Subdomain {
		t.Errorf("Subdomain = %q, want %q", resolverCfg.Subdomain, cfg.Subdomain)
	}
	if resolverCfg.Email != cfg.Email || resolverCfg.APIToken != cfg.Token {
		t.Errorf("static credentials = %q/%q, want %q/%q", resolverCfg.Email, resolverCfg.APIToken, cfg.Email, cfg.Token)
	}
	if resolverCfg.ClientID != "client-id" || resolverCfg.ClientSecret != "client-secret" {
		t.Errorf("client credentials not threaded through")
	}
	if resolverCfg.Store == nil {
		t.Error("Store = nil, want a configured token store")
	}
	if resolverCfg.Store.Location() != cfg.Auth.File {
		t.Errorf("Store.Location() = %q, want %q", resolverCfg.Store.Location(), cfg.Auth.File)
	}
}

func TestConfigNewOAuthBackend(t *testing.T) {
	cfg := validConfig(t)
	cfg.OAuthClientID = "config-id"
	cfg.OAuthClientSecret = "config-secret"

	if _, err := cfg.NewOAuthBackend("", ""); err != nil {
		t.Errorf("NewOAuthBackend() with configured credentials error = %v", err)
	}
	if _, err := cfg.NewOAuthBackend("flag-id", "flag-secret"); err != nil {
		t.Errorf("NewOAuthBackend() with explicit credentials error = %v", err)
	}

	cfg.Subdomain = ""
	if _, err := cfg.NewOAuthBackend("", ""); err == nil {
		t.Error("NewOAuthBackend() succeeded without a subdomain")
	}
}
