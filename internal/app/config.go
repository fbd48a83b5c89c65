// Package app holds application configuration and wiring between the config
// layer and the credentials subsystem.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/zdauth/internal/credentials"
	"github.com/florianilch/zdauth/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the storage backends supported for the OAuth
// token record.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat   = LogFormatText
	DefaultConfigAuthStorage = TokenStorageTypeFile
	DefaultConfigScopes      = credentials.DefaultScopes

	keyringService = "zdauth-token"
)

// AuthConfig describes where the OAuth token record is persisted.
type AuthConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token record file
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(keyringService, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// Config holds the application's configuration. Credential fields mirror the
// ZENDESK_* environment variables, which take priority over the config file.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json"`

	// Subdomain identifies the tenant, e.g. "company" for company.zendesk.com.
	Subdomain string `json:"subdomain" validate:"omitempty,hostname_rfc1123"`

	// Static API-token credentials.
	Email string `json:"email" validate:"omitempty,email"`
	Token string `json:"token"`

	// OAuth client credentials, persisted after a successful flow so refresh
	// works without environment variables.
	OAuthClientID     string `json:"oauth_client_id"`
	OAuthClientSecret string `json:"oauth_client_secret"`

	// Scopes requested during OAuth authorization, space-separated.
	Scopes string `json:"scopes"`

	Auth AuthConfig `json:"auth"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Scopes == "" {
		c.Scopes = DefaultConfigScopes
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "zdauth", "oauth_token.json")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}

// ResolverConfig threads the relevant config values into the credentials
// resolver. The store is constructed here; no other I/O is performed.
func (c *Config) ResolverConfig() (credentials.ResolverConfig, error) {
	store, err := c.Auth.NewTokenStore()
	if err != nil {
		return credentials.ResolverConfig{}, fmt.Errorf("failed to create token store: %w", err)
	}

	return credentials.ResolverConfig{
		Subdomain:    c.Subdomain,
		Store:        store,
		ClientID:     c.OAuthClientID,
		ClientSecret: c.OAuthClientSecret,
		Scopes:       c.Scopes,
		Email:        c.Email,
		APIToken:     c.Token,
	}, nil
}

// NewOAuthBackend builds the OAuth backend for interactive flows, independent
// of resolver precedence. Explicit client credentials override configured ones.
func (c *Config) NewOAuthBackend(clientID, clientSecret string) (*credentials.OAuthBackend, error) {
	if c.Subdomain == "" {
		return nil, errors.New("subdomain required; set ZENDESK_SUBDOMAIN or add subdomain to the config file")
	}

	store, err := c.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	if clientID == "" {
		clientID = c.OAuthClientID
	}
	if clientSecret == "" {
		clientSecret = c.OAuthClientSecret
	}

	return credentials.NewOAuthBackend(credentials.OAuthConfig{
		Subdomain:    c.Subdomain,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       c.Scopes,
		Store:        store,
	})
}
