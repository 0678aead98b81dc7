package blobstore

import (
	"context"
	"os"
	"path"
	"strings"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is a flat key/value store of opaque blobs addressed by
// slash-separated names ("collections/<id>/collection.json").
//
// Put must be atomic: a concurrent Get observes either the previous or the
// new content, never a partial write. Implementations must be safe for
// concurrent use.
type BlobStore interface {
	// Get returns the full content of a blob.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put writes a blob, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// DeletePrefix removes every blob whose name starts with prefix.
func DeletePrefix(ctx context.Context, s BlobStore, prefix string) error {
	names, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Join joins name elements with '/'.
func Join(elem ...string) string {
	return path.Join(elem...)
}

// ListPrefix prepends a store-level root to a list prefix, keeping any
// trailing slash that path.Join would drop.
func ListPrefix(root, prefix string) string {
	if root == "" {
		return prefix
	}
	return strings.TrimSuffix(root, "/") + "/" + prefix
}

// TrimRoot strips a store-level root prefix from a full object key.
func TrimRoot(key, root string) string {
	if root == "" {
		return key
	}
	rel := strings.TrimPrefix(key, root)
	return strings.TrimPrefix(rel, "/")
}
