// Package storage keeps profile photos in an object store and hands out
// time-limited URLs for them.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultURLTTL is how long presigned photo URLs stay valid.
const DefaultURLTTL = 3600 * time.Second

var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore is the subset of an S3-compatible bucket the services need.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
