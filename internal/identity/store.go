package identity

import "context"

// Store abstracts identity persistence. The in-memory implementation is the
// reference; the SQLite adapter gives single-node durability. Implementations
// must return ErrIdentityNotFound for missing records.
type Store interface {
	// Get fetches an identity by id.
	Get(ctx context.Context, id string) (*Identity, error)
	// GetByEmail fetches an identity by normalized email.
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	// Put inserts or replaces an identity keyed by its ID.
	Put(ctx context.Context, identity *Identity) error
	// Delete removes an identity. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// Scan visits every identity until fn returns false.
	Scan(ctx context.Context, fn func(*Identity) bool) error
}
