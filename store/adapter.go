package store

import "context"

// Version is the opaque optimistic-concurrency token the store keeps for each
// key. Every successful write of a key yields a strictly greater Version.
type Version uint64

// Document is a stored value together with its version.
type Document struct {
	Key     string
	Value   []byte
	Version Version
}

// Adapter is the per-key interface every backend implements. Implementations
// must be safe for concurrent use and must not retain value slices after a
// call returns.
type Adapter interface {
	// Get returns the document stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (Document, error)

	// Insert stores value under key only if the key is absent.
	// Returns ErrAlreadyExists when another writer holds the key.
	Insert(ctx context.Context, key string, value []byte) (Version, error)

	// Replace overwrites the value under key only if its current version equals expected.
	// Returns ErrNotFound if the key is absent and ErrVersionConflict on a version mismatch.
	Replace(ctx context.Context, key string, value []byte, expected Version) (Version, error)

	// Remove deletes key. Returns ErrNotFound if the key is absent.
	Remove(ctx context.Context, key string) error
}
