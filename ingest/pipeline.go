// Package ingest imports external media items into the catalog: extraction,
// upload of the audio/cover/metadata triplet, index append and ledger entry.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"beatvault/catalog"
	"beatvault/core/extractor"
	"beatvault/core/utils"
	"beatvault/logger"
	"beatvault/model"
	"beatvault/repository"
	"beatvault/storage"
)

// maxBatchErrors caps the per-item errors kept on a BatchResult.
const maxBatchErrors = 50

// Collection is the context an item is imported under. The zero value means
// a standalone single-item import.
type Collection struct {
	ID      string     // source config id
	Locator string     // channel or playlist URL
	Kind    string     // model.SourceChannel or model.SourcePlaylist
	Since   *time.Time // listing hint; older items may still be returned
}

func (c Collection) sourceType() string {
	if c.Kind == "" {
		return model.SourceVideo
	}
	return c.Kind
}

// ItemError describes one failed member of a batch.
type ItemError struct {
	SourceID string `json:"sourceId"`
	Stage    Stage  `json:"stage"`
	Error    string `json:"error"`
}

// BatchResult aggregates ImportFromCollection.
type BatchResult struct {
	Imported int         `json:"imported"`
	Failed   int         `json:"failed"`
	Skipped  int         `json:"skipped"`
	TrackIDs []string    `json:"trackIds"`
	Errors   []ItemError `json:"errors"`
}

// Options configures a Pipeline.
type Options struct {
	WorkDir string
	Price   float64
	License model.LicenseType
	Retry   utils.RetryPolicy
}

// Pipeline imports items. It holds no per-import state and is safe for
// concurrent use.
type Pipeline struct {
	bucket    storage.Bucket
	index     *catalog.Index
	ledger    repository.ImportLedger
	extractor extractor.Extractor
	opts      Options

	now   func() time.Time
	newID func() string
}

// NewPipeline wires a pipeline over explicitly constructed collaborators.
func NewPipeline(bucket storage.Bucket, index *catalog.Index, ledger repository.ImportLedger, ex extractor.Extractor, opts Options) *Pipeline {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.License == "" {
		opts.License = model.LicenseBasic
	}
	if opts.Retry.Attempts == 0 && opts.Retry.Base == 0 {
		opts.Retry = utils.DefaultRetry
	}
	return &Pipeline{
		bucket:    bucket,
		index:     index,
		ledger:    ledger,
		extractor: ex,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     model.NewTrackID,
	}
}

// ImportOne imports a single item. The ledger is consulted before the
// extraction tool runs, so already-imported items cost one lookup. A
// duplicate returns an error matching ErrDuplicate and writes nothing.
func (p *Pipeline) ImportOne(ctx context.Context, locator string, coll Collection) (*model.Track, error) {
	sourceID, err := extractor.ParseVideoID(locator)
	if err != nil {
		return nil, &ImportError{Stage: StageLocator, Err: err}
	}
	fail := func(stage Stage, err error) (*model.Track, error) {
		return nil, &ImportError{Stage: stage, SourceID: sourceID, Err: err}
	}

	existing, err := p.ledger.Find(ctx, sourceID)
	if err != nil {
		return fail(StageLedger, err)
	}
	if existing != nil {
		return fail(StageLedger, fmt.Errorf("%w as %s", ErrDuplicate, existing.TrackID))
	}

	workDir, err := os.MkdirTemp(p.opts.WorkDir, "import-"+sourceID+"-")
	if err != nil {
		return fail(StageExtraction, fmt.Errorf("create work dir: %w", err))
	}
	defer os.RemoveAll(workDir)

	item, err := p.extractor.Extract(ctx, extractor.WatchURL(sourceID), workDir)
	if err != nil {
		return fail(StageExtraction, err)
	}
	if item.Title == "" || item.Artist == "" {
		return fail(StageExtraction, ErrNotMusic)
	}

	id := p.newID()
	track := &model.Track{
		ID:              id,
		Title:           item.Title,
		Artist:          item.Artist,
		BPM:             InferBPM(item.Title),
		Key:             InferKey(item.Title),
		Duration:        model.FormatDuration(item.DurationSeconds),
		DurationSeconds: item.DurationSeconds,
		Tags:            model.NormalizeTags(item.Tags),
		AudioKey:        model.AudioKey(id),
		Price:           p.opts.Price,
		LicenseType:     p.opts.License,
		SourceURL:       firstNonEmpty(item.WebpageURL, extractor.WatchURL(sourceID)),
		SourceID:        sourceID,
		CreatedAt:       p.now(),
	}
	track.AudioURL = p.bucket.PublicURL(track.AudioKey)

	if err := p.uploadFile(ctx, item.AudioPath, track.AudioKey, "audio/mpeg"); err != nil {
		return fail(StageUpload, err)
	}
	if item.ImagePath != "" {
		coverKey := model.CoverKey(id)
		if err := p.uploadFile(ctx, item.ImagePath, coverKey, "image/jpeg"); err != nil {
			return fail(StageUpload, err)
		}
		track.CoverKey = coverKey
		track.CoverURL = p.bucket.PublicURL(coverKey)
	}

	meta, err := json.Marshal(track)
	if err != nil {
		return fail(StageMetadata, err)
	}
	if err := p.put(ctx, model.MetadataKey(id), meta, "application/json"); err != nil {
		return fail(StageMetadata, err)
	}

	err = utils.Retry(ctx, "index append", p.opts.Retry, func(ctx context.Context) error {
		_, err := p.index.Append(ctx, id)
		if errors.Is(err, catalog.ErrCorruptIndex) {
			return utils.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fail(StageIndex, err)
	}

	inserted, err := p.ledger.Append(ctx, &model.ImportRecord{
		SourceItemID:       sourceID,
		TrackID:            id,
		SourceURL:          track.SourceURL,
		ImportedAt:         track.CreatedAt,
		SourceCollectionID: coll.ID,
		SourceType:         coll.sourceType(),
	})
	if err != nil {
		return fail(StageRecord, err)
	}
	if !inserted {
		logger.Warn("item was imported concurrently; ledger keeps the earlier track",
			logger.String("sourceId", sourceID), logger.TrackID(id))
	}

	logger.Info("track imported",
		logger.TrackID(id),
		logger.String("sourceId", sourceID),
		logger.String("title", track.Title),
		logger.String("collection", coll.ID))
	return track, nil
}

// ImportFromCollection lists up to max members of coll and imports each.
// One member's failure never stops the batch; duplicates count as skipped.
// Only a listing failure or cancellation of ctx is returned as an error.
func (p *Pipeline) ImportFromCollection(ctx context.Context, coll Collection, max int) (BatchResult, error) {
	res := BatchResult{TrackIDs: []string{}, Errors: []ItemError{}}

	ids, err := p.extractor.ListCollection(ctx, coll.Locator, coll.Since, max)
	if err != nil {
		return res, fmt.Errorf("list collection %s: %w", coll.Locator, err)
	}
	logger.Info("importing collection",
		logger.String("collection", coll.ID),
		logger.String("locator", coll.Locator),
		logger.Int("items", len(ids)))

	for _, sourceID := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		track, err := p.ImportOne(ctx, sourceID, coll)
		switch {
		case errors.Is(err, ErrDuplicate):
			res.Skipped++
		case err != nil:
			res.Failed++
			if len(res.Errors) < maxBatchErrors {
				res.Errors = append(res.Errors, ItemError{SourceID: sourceID, Stage: StageOf(err), Error: err.Error()})
			}
			logger.Warn("collection item failed",
				logger.String("sourceId", sourceID),
				logger.String("stage", string(StageOf(err))),
				logger.ErrorField(err))
		default:
			res.Imported++
			res.TrackIDs = append(res.TrackIDs, track.ID)
		}
	}
	return res, nil
}

func (p *Pipeline) uploadFile(ctx context.Context, path, key, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return p.put(ctx, key, data, contentType)
}

func (p *Pipeline) put(ctx context.Context, key string, data []byte, contentType string) error {
	return utils.Retry(ctx, "put "+key, p.opts.Retry, func(ctx context.Context) error {
		return p.bucket.PutObject(ctx, key, data, contentType)
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
