// Package storage defines where attachment bytes live.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore keeps uploaded files under opaque slash separated keys.
type BlobStore interface {
	// Put writes everything read from r under key and returns the byte count.
	// A failed Put leaves nothing behind.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// URL is the public location clients fetch key from.
	URL(key string) string
}
