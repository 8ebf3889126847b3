// Package catalog owns tracks/list.json: reading it (including the legacy
// double-encoded form), merging new ids into it, and rebuilding it from the
// audio objects that actually exist in the bucket.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"beatvault/logger"
	"beatvault/model"
	"beatvault/storage"
)

var (
	// ErrCorruptIndex means the stored index is not a JSON array of strings.
	// Writers fail closed on it; only a rebuild may overwrite such an index.
	ErrCorruptIndex = errors.New("track index is corrupt")
	// ErrEmptyListing aborts a rebuild that found no audio objects.
	ErrEmptyListing = errors.New("no audio objects found; refusing to write an empty index")
)

// Invalidator is notified after the index object changes.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Snapshot is the decoded state of the index object.
type Snapshot struct {
	IDs     []string // valid ids, stored order, deduplicated
	Invalid []string // entries dropped for not matching the id format
	Dupes   int      // duplicate entries dropped
	Wrapped bool     // stored double-encoded
	Exists  bool
}

// Index reads and updates tracks/list.json.
type Index struct {
	bucket storage.Bucket
	cache  Invalidator
}

// NewIndex creates an Index over bucket. cache may be nil.
func NewIndex(bucket storage.Bucket, cache Invalidator) *Index {
	return &Index{bucket: bucket, cache: cache}
}

// Decode parses an index payload. Plain arrays and the legacy double-encoded
// string form are both accepted; anything else is ErrCorruptIndex.
func Decode(raw []byte) (Snapshot, error) {
	doc, wrapped, err := UnwrapJSON(raw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	var entries []any
	if err := json.Unmarshal(doc, &entries); err != nil {
		return Snapshot{}, fmt.Errorf("%w: not an array", ErrCorruptIndex)
	}

	snap := Snapshot{Wrapped: wrapped, Exists: true, IDs: make([]string, 0, len(entries))}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		id, ok := e.(string)
		if !ok || !model.IsTrackID(id) {
			snap.Invalid = append(snap.Invalid, fmt.Sprint(e))
			continue
		}
		if _, dup := seen[id]; dup {
			snap.Dupes++
			continue
		}
		seen[id] = struct{}{}
		snap.IDs = append(snap.IDs, id)
	}
	return snap, nil
}

// Encode serializes ids as a plain JSON array. It never double-encodes.
func Encode(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

// Read loads the index. A missing object is an empty, non-existent snapshot.
func (x *Index) Read(ctx context.Context) (Snapshot, error) {
	raw, err := x.bucket.GetObject(ctx, model.IndexKey)
	if storage.IsNotFound(err) {
		return Snapshot{IDs: []string{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read index: %w", err)
	}
	return Decode(raw)
}

// Append merges ids into the index with a read-merge-write. Existing order
// is kept, new ids go to the end and duplicates collapse, so concurrent
// appenders converge: the last writer may drop another's id, which the next
// rebuild restores from the audio objects. A corrupt index is left untouched.
func (x *Index) Append(ctx context.Context, ids ...string) ([]string, error) {
	for _, id := range ids {
		if !model.IsTrackID(id) {
			return nil, fmt.Errorf("append %q: invalid track id", id)
		}
	}

	snap, err := x.Read(ctx)
	if err != nil {
		return nil, err
	}

	merged := snap.IDs
	seen := make(map[string]struct{}, len(merged)+len(ids))
	for _, id := range merged {
		seen[id] = struct{}{}
	}
	added := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
		added++
	}

	dirty := added > 0 || snap.Wrapped || len(snap.Invalid) > 0 || snap.Dupes > 0 || !snap.Exists
	if !dirty {
		return merged, nil
	}
	if len(snap.Invalid) > 0 {
		logger.Warn("dropping invalid index entries", logger.Strings("entries", snap.Invalid))
	}

	data, err := Encode(merged)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	if err := x.bucket.PutObject(ctx, model.IndexKey, data, "application/json"); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}
	if x.cache != nil {
		x.cache.Invalidate(ctx)
	}
	return merged, nil
}
