// Package ports defines the contracts between the declared entities and
// their storage. The engine never touches storage itself: variables read
// and write through these interfaces. Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// DocumentStore persists JSON-compatible documents by key.
// Documents come back decoded: objects as map[string]any, arrays as []any,
// numbers as float64. Callers own the returned value.
type DocumentStore interface {
	// Get returns the document at key or ErrNotFound.
	Get(ctx context.Context, key string) (any, error)

	// Put stores doc at key, replacing any previous document.
	Put(ctx context.Context, key string, doc any) error

	// Update atomically replaces the document at key with fn's result.
	// fn receives nil when the document does not exist. If fn returns an
	// error, nothing is written.
	Update(ctx context.Context, key string, fn func(doc any) (any, error)) (any, error)

	// Delete removes the document at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists stored keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
}
