package driven

import "context"

// Storage is the persistence backend consumed by the blob store, tree store
// and vector index. Paths are opaque slash-separated keys such as
// "trees/<id>/nodes/<nodeId>.json".
//
// Read of a missing path returns an error wrapping domain.ErrNotFound.
// Every other failure should wrap domain.ErrStorageFailure.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error

	// Delete is idempotent: deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// List returns every path starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	Exists(ctx context.Context, path string) (bool, error)
}
