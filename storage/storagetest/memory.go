// Package storagetest provides an in-memory storage.Bucket for tests.
package storagetest

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"beatvault/storage"
)

// Bucket is a concurrency-safe in-memory storage.Bucket. Failure hooks let
// tests inject listing and write errors.
type Bucket struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
	data    map[string][]byte
	puts    []string

	// ListErr, when set, is yielded by ListObjects for matching prefixes.
	ListErr map[string]error
	// PutErr, when set, fails PutObject for the given key.
	PutErr map[string]error
	// Origin is used by PublicURL.
	Origin string
}

// NewBucket returns an empty bucket whose public URLs start with origin.
func NewBucket(origin string) *Bucket {
	return &Bucket{
		objects: make(map[string]storage.ObjectInfo),
		data:    make(map[string][]byte),
		ListErr: make(map[string]error),
		PutErr:  make(map[string]error),
		Origin:  origin,
	}
}

// Seed stores data without recording a put.
func (b *Bucket) Seed(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store(key, data, "")
}

func (b *Bucket) store(key string, data []byte, contentType string) {
	cp := append([]byte(nil), data...)
	b.data[key] = cp
	b.objects[key] = storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(cp)),
		LastModified: time.Now(),
		ContentType:  contentType,
	}
}

// Puts returns every key written through PutObject, in order.
func (b *Bucket) Puts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.puts...)
}

// Keys returns every stored key, sorted.
func (b *Bucket) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key exists.
func (b *Bucket) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok
}

// Get returns the bytes under key, or nil.
func (b *Bucket) Get(key string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data[key]...)
}

func (b *Bucket) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.PutErr[key]; err != nil {
		return fmt.Errorf("memory put %s: %w", key, err)
	}
	b.store(key, data, contentType)
	b.puts = append(b.puts, key)
	return nil
}

func (b *Bucket) GetObject(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("memory get %s: %w", key, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (b *Bucket) HeadObject(ctx context.Context, key string) (storage.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.objects[key]
	if !ok {
		return storage.ObjectInfo{}, fmt.Errorf("memory head %s: %w", key, storage.ErrNotFound)
	}
	return info, nil
}

func (b *Bucket) ListObjects(ctx context.Context, prefix string) iter.Seq2[storage.ObjectInfo, error] {
	return func(yield func(storage.ObjectInfo, error) bool) {
		b.mu.Lock()
		if err := b.ListErr[prefix]; err != nil {
			b.mu.Unlock()
			yield(storage.ObjectInfo{}, err)
			return
		}
		var infos []storage.ObjectInfo
		for k, info := range b.objects {
			if strings.HasPrefix(k, prefix) {
				infos = append(infos, info)
			}
		}
		b.mu.Unlock()

		sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
		for _, info := range infos {
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (b *Bucket) PublicURL(key string) string {
	return strings.TrimRight(b.Origin, "/") + "/" + key
}
