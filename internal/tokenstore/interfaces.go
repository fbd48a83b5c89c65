package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no record is stored.
var ErrNotFound = errors.New("no token record stored")

// TokenStore reads and writes the OAuth token record in persistent storage.
type TokenStore interface {
	// Load returns the stored record. Returns ErrNotFound if nothing usable
	// is stored.
	Load(ctx context.Context) (*Record, error)

	// Save persists the record, replacing any previous one.
	Save(ctx context.Context, record *Record) error

	// Delete removes the stored record. Reports whether anything was removed;
	// deleting an absent record is not an error.
	Delete(ctx context.Context) (bool, error)

	// Location describes where the record lives, for status output and error
	// guidance.
	Location() string
}
