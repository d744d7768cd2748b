// Package store persists the token set between runs. Drivers seal every
// value with a cryptox.Sealer before it is written.
package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/splatauth/pkg/tokens"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrNoSealer = errors.New("store: a sealer is required")
)

// Store is implemented by every driver. It is the tokens.Repository the
// token store writes through.
type Store interface {
	tokens.Repository

	// ApplyMigrations brings the schema up to date. Drivers without a
	// schema return nil.
	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
