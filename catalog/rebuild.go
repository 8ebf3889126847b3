package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"beatvault/logger"
	"beatvault/model"
	"beatvault/storage"
)

// maxRejectedExamples caps the rejected keys kept on a report.
const maxRejectedExamples = 20

// RebuildReport summarizes one index rebuild.
type RebuildReport struct {
	OK              bool     `json:"ok"`
	TrackCount      int      `json:"trackCount"`
	Added           []string `json:"added"`
	Removed         []string `json:"removed"`
	Rejected        int      `json:"rejected"`
	RejectedKeys    []string `json:"rejectedKeys,omitempty"`
	PreviousCorrupt bool     `json:"previousCorrupt,omitempty"`
	// Flagged only; neither side is fabricated nor deleted.
	OrphanMetadata  []string `json:"orphanMetadata"`
	MissingMetadata []string `json:"missingMetadata"`
}

// Rebuilder derives tracks/list.json from the audio objects in the bucket.
// It is the only writer allowed to replace the whole array.
type Rebuilder struct {
	bucket   storage.Bucket
	index    *Index
	prefixes []string
}

// NewRebuilder scans prefixes for <id>.mp3 objects. An empty prefix list
// falls back to the standard audio prefix.
func NewRebuilder(bucket storage.Bucket, index *Index, prefixes []string) *Rebuilder {
	if len(prefixes) == 0 {
		prefixes = []string{model.AudioPrefix}
	}
	return &Rebuilder{bucket: bucket, index: index, prefixes: prefixes}
}

// RebuildIndex lists every audio prefix, keeps names of the form <id>.mp3,
// and overwrites the index with the sorted, deduplicated ids in one put.
// Listing errors and empty listings abort before anything is written, so a
// working index is never replaced by a partial or empty one.
func (r *Rebuilder) RebuildIndex(ctx context.Context) (RebuildReport, error) {
	report := RebuildReport{
		Added:           []string{},
		Removed:         []string{},
		OrphanMetadata:  []string{},
		MissingMetadata: []string{},
	}

	previous, prevErr := r.index.Read(ctx)
	switch {
	case errors.Is(prevErr, ErrCorruptIndex):
		report.PreviousCorrupt = true
		logger.Warn("existing index is corrupt; it will be replaced", logger.ErrorField(prevErr))
	case prevErr != nil:
		logger.Warn("could not read existing index; diff unavailable", logger.ErrorField(prevErr))
	}

	audio, err := r.listAudio(ctx, &report)
	if err != nil {
		return report, err
	}
	if len(audio) == 0 {
		return report, ErrEmptyListing
	}

	ids := make([]string, 0, len(audio))
	for id := range audio {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := Encode(ids)
	if err != nil {
		return report, fmt.Errorf("encode index: %w", err)
	}
	if err := r.bucket.PutObject(ctx, model.IndexKey, data, "application/json"); err != nil {
		return report, fmt.Errorf("write index: %w", err)
	}
	if r.index.cache != nil {
		r.index.cache.Invalidate(ctx)
	}
	report.OK = true
	report.TrackCount = len(ids)

	if prevErr == nil {
		report.Added, report.Removed = diff(previous.IDs, ids)
	}

	r.checkMetadata(ctx, audio, &report)

	logger.Info("track index rebuilt",
		logger.Int("tracks", report.TrackCount),
		logger.Int("added", len(report.Added)),
		logger.Int("removed", len(report.Removed)),
		logger.Int("rejected", report.Rejected),
		logger.Int("orphanMetadata", len(report.OrphanMetadata)),
		logger.Int("missingMetadata", len(report.MissingMetadata)))
	return report, nil
}

func (r *Rebuilder) listAudio(ctx context.Context, report *RebuildReport) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for _, prefix := range r.prefixes {
		for obj, err := range r.bucket.ListObjects(ctx, prefix) {
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", prefix, err)
			}
			if obj.Key == model.IndexKey {
				continue
			}
			id, ok := audioID(prefix, obj.Key)
			if !ok {
				report.Rejected++
				if len(report.RejectedKeys) < maxRejectedExamples {
					report.RejectedKeys = append(report.RejectedKeys, obj.Key)
				}
				continue
			}
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// audioID extracts <id> from <prefix><id>.mp3. Nested paths are rejected.
func audioID(prefix, key string) (string, bool) {
	name := strings.TrimPrefix(key, prefix)
	if strings.Contains(name, "/") || path.Ext(name) != ".mp3" {
		return "", false
	}
	id := strings.TrimSuffix(name, ".mp3")
	return id, model.IsTrackID(id)
}

// checkMetadata flags ids whose audio and metadata objects are not paired.
// Failure to list metadata only drops this part of the report.
func (r *Rebuilder) checkMetadata(ctx context.Context, audio map[string]struct{}, report *RebuildReport) {
	meta := make(map[string]struct{})
	for obj, err := range r.bucket.ListObjects(ctx, model.MetadataPrefix) {
		if err != nil {
			logger.Warn("metadata listing failed; orphan check skipped", logger.ErrorField(err))
			return
		}
		name := strings.TrimPrefix(obj.Key, model.MetadataPrefix)
		id := strings.TrimSuffix(name, ".json")
		if name == id || !model.IsTrackID(id) {
			continue
		}
		meta[id] = struct{}{}
		if _, ok := audio[id]; !ok {
			report.OrphanMetadata = append(report.OrphanMetadata, id)
		}
	}
	for id := range audio {
		if _, ok := meta[id]; !ok {
			report.MissingMetadata = append(report.MissingMetadata, id)
		}
	}
	sort.Strings(report.OrphanMetadata)
	sort.Strings(report.MissingMetadata)
}

func diff(before, after []string) (added, removed []string) {
	old := make(map[string]struct{}, len(before))
	for _, id := range before {
		old[id] = struct{}{}
	}
	cur := make(map[string]struct{}, len(after))
	added, removed = []string{}, []string{}
	for _, id := range after {
		cur[id] = struct{}{}
		if _, ok := old[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if _, ok := cur[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return added, removed
}
