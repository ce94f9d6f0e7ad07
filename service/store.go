package service

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by a BlobStore when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore copies objects out of an object storage service.
type BlobStore interface {
	Download(ctx context.Context, bucket, key string, w io.Writer) error
}
