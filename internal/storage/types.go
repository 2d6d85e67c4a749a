package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// Store provides object operations against one bucket or local filesystem.
// Paths are bucket-relative object names (or filesystem paths for the local
// store) using forward slashes.
type Store interface {
	// Get returns the full object content. It returns an error wrapping
	// ErrNotFound when the object does not exist.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put creates or replaces the object at path.
	Put(ctx context.Context, path string, data []byte) error

	// List returns every object whose path starts with prefix, sorted by path.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}
