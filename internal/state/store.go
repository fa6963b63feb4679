// Package state persists host workspace state: small string values keyed per
// workspace that outlive a single preview session.
package state

import "context"

// Store is a workspace-scoped key/value memento.
type Store interface {
	// Get returns the value for key, or nil when the key is absent.
	Get(ctx context.Context, key string) (*string, error)
	// Update stores value under key. A nil value removes the key.
	Update(ctx context.Context, key string, value *string) error
	// Keys lists the keys present in the workspace.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
