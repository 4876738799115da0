// Package repository defines the object store the pipeline persists through.
package repository

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	LastModified time.Time
	Size         int64
}

// ObjectStore is a bucketed key/value blob store.
//
// Implementations return ErrNotFound for missing objects and wrap every other
// backend failure in ErrTransient so callers can retry.
type ObjectStore interface {
	// List returns every object in bucket whose key starts with prefix.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	// Get returns an object's content.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put writes an object, replacing any previous content atomically.
	Put(ctx context.Context, bucket, key string, data []byte) error
	// Copy duplicates an object within a bucket.
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error
}
