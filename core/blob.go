package core

import (
	"context"
	"io"
)

// Blob is a stored media object.
type Blob struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// BlobStore is any service able to store media objects (gallery images & videos, lesson files).
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error
	Get(ctx context.Context, key string) (Blob, error)
	Delete(ctx context.Context, keys ...string) error
}

// ErrBlobNotFound is returned by BlobStore.Get when the key does not exist.
var ErrBlobNotFound = NewNotFoundError("blob")
