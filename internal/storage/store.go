package storage

import (
	"context"
)

// ObjectStore is the attachment blob store. Keys are opaque paths owned by
// the caller; Put returns the stored key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}
