package store

import "context"

// KV is the asynchronous key-value surface the session store persists
// through. Implementations must be safe for concurrent use; they are not
// required to provide any isolation between read-modify-write cycles.
type KV interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
