package storage

import (
	"context"
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = fmt.Errorf("storage key %w", errors.ErrNotFound)

// Store is the pluggable blob backend. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores data at key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the data at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys starting with prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
