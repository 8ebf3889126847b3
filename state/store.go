// Package state persists small JSON documents (scheduler state, the import
// ledger) under string keys, either in the object store or on local disk.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"beatvault/config"
	"beatvault/logger"
	"beatvault/storage"
)

// Store saves and loads JSON-serializable values. The backend is fixed at
// construction; readiness is decided once and cached.
type Store struct {
	bucket  storage.Bucket
	backend config.Backend
	ready   bool
}

// New builds a Store over bucket. For the local backend bucket is normally a
// storage.LocalBucket; for the remote backend it is the shared remote bucket.
func New(backend config.Backend, bucket storage.Bucket) *Store {
	return &Store{bucket: bucket, backend: backend, ready: bucket != nil}
}

// Backend reports which backend the store writes to.
func (s *Store) Backend() config.Backend { return s.backend }

// Ready reports whether the store has a usable backend.
func (s *Store) Ready() bool { return s.ready }

// normalizeKey appends .json when the key has no extension of that kind.
func normalizeKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if !strings.HasSuffix(key, ".json") {
		key += ".json"
	}
	return key
}

// Save serializes value as JSON and writes it under key.
func (s *Store) Save(ctx context.Context, key string, value any) error {
	if !s.ready {
		return fmt.Errorf("state store not ready")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	key = normalizeKey(key)
	if err := s.bucket.PutObject(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// LoadRaw returns the stored bytes under key without interpreting them.
// Missing keys return an error matching storage.ErrNotFound.
func (s *Store) LoadRaw(ctx context.Context, key string) ([]byte, error) {
	if !s.ready {
		return nil, fmt.Errorf("state store not ready")
	}
	return s.bucket.GetObject(ctx, normalizeKey(key))
}

// Load reads key into a T. A missing key or malformed JSON yields def; the
// latter is logged. Only transport failures are returned as errors.
func Load[T any](ctx context.Context, s *Store, key string, def T) (T, error) {
	data, err := s.LoadRaw(ctx, key)
	if storage.IsNotFound(err) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("load %s: %w", key, err)
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		logger.Warn("malformed state document, using default",
			logger.Key(normalizeKey(key)),
			logger.String("backend", string(s.backend)),
			logger.ErrorField(err))
		return def, nil
	}
	return out, nil
}
