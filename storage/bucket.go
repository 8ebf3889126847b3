// Package storage wraps the S3-compatible object store that holds every
// persisted byte of the catalog: audio, covers, metadata and index objects.
package storage

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
)

// ErrNotFound is returned (wrapped) when a key does not exist. Callers use it to
// apply default values instead of treating the miss as a failure.
var ErrNotFound = errors.New("object not found")

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
}

// Bucket is the blob store contract. Implementations perform remote calls and
// do not retry; callers that need resilience retry themselves.
type Bucket interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	HeadObject(ctx context.Context, key string) (ObjectInfo, error)
	// ListObjects lazily yields every object under prefix, following
	// continuation tokens. Each call starts a fresh listing.
	ListObjects(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error]
	// PublicURL builds the absolute URL clients use to fetch key.
	PublicURL(key string) string
}

// IsNotFound reports whether err denotes a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// publicURL prefers the canonical CDN origin and falls back to the direct
// store base when no origin is configured.
func publicURL(cdnOrigin, directBase, key string) string {
	key = strings.TrimLeft(key, "/")
	if cdnOrigin != "" {
		return strings.TrimRight(cdnOrigin, "/") + "/" + key
	}
	return strings.TrimRight(directBase, "/") + "/" + key
}

// Collect drains a listing into a slice, stopping at the first error.
func Collect(seq iter.Seq2[ObjectInfo, error]) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
