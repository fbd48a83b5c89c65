package tokenstore

import (
	"time"
)

// Record is the persisted OAuth token record. Zendesk rotates both the access
// and refresh tokens on each refresh, so the record is always replaced as a
// whole.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
}

// Valid reports whether the record is structurally usable, i.e. it carries an
// access token. It says nothing about freshness.
func (r *Record) Valid() bool {
	return r != nil && r.AccessToken != ""
}

// Stale reports whether the record should be refreshed before use: true once
// now reaches ExpiresAt minus the safety margin.
func (r *Record) Stale(now time.Time, margin time.Duration) bool {
	return !now.Before(r.ExpiresAt.Add(-margin))
}
