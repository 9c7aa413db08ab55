// Package storage defines the blob store abstraction behind the snapshot
// cache. Implementations live in the local, memory and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject when nothing is stored at path.
var ErrObjectNotFound = errors.New("storage: object not found")

// BlobStore reads and writes opaque objects by path.
type BlobStore interface {
	// PutObject stores data at path and returns a URI describing where it went.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the bytes stored at path or ErrObjectNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
