// Package storage defines the object store that exports can be written to.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	// ErrIncompleteUpload means the stored object does not match what was
	// sent. The object has been removed again.
	ErrIncompleteUpload = errors.New("uploaded object is incomplete")
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, key string) error
	// Location renders a human readable address for key, such as
	// s3://bucket/prefix/key.
	Location(key string) string
}
