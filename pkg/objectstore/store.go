// Package objectstore abstracts the binary blob backend behind a small
// put/get/delete/presign interface. Callers depend only on the Store
// interface, never on a specific provider.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no blob exists at the key.
var ErrNotFound = errors.New("objectstore: object not found")

// Store is the interface all blob storage providers implement.
type Store interface {
	// Put writes data at key, overwriting unconditionally if the key exists.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the blob stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the blob at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Presign returns a time-limited read URL for the blob at key.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}
