// Package repair rewrites per-track metadata objects whose stored URLs point
// at a previously issued CDN domain, and un-wraps metadata that was stored
// double-encoded.
package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"beatvault/catalog"
	"beatvault/logger"
	"beatvault/model"
	"beatvault/storage"
)

// MaxExamples caps the anomalies kept on a Summary.
const MaxExamples = 10

// urlFields are the metadata fields that carry absolute object URLs.
var urlFields = []string{"audioUrl", "coverUrl"}

var (
	ErrMissingID    = errors.New("metadata has no id")
	ErrNotAnObject  = errors.New("metadata is not a JSON object")
	ErrNotCanonical = errors.New("repaired url does not start with the canonical origin")
)

// Example describes one object the run touched or could not touch.
type Example struct {
	Key    string `json:"key"`
	Field  string `json:"field,omitempty"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Summary is the result of one repair pass.
type Summary struct {
	Total    int       `json:"total"`
	Updated  int       `json:"updated"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Examples []Example `json:"examples"`
}

func (s *Summary) example(e Example) {
	if len(s.Examples) < MaxExamples {
		s.Examples = append(s.Examples, e)
	}
}

// Engine repairs metadata objects in place.
type Engine struct {
	bucket storage.Bucket
	origin string
	host   string
	stale  []string

	// DryRun counts what would change without writing.
	DryRun bool
}

// NewEngine targets origin (an absolute URL such as https://cdn.example.com)
// and replaces any of staleDomains found in URL fields.
func NewEngine(bucket storage.Bucket, origin string, staleDomains []string) (*Engine, error) {
	origin = strings.TrimRight(origin, "/")
	i := strings.Index(origin, "://")
	if i <= 0 || len(origin) == i+3 {
		return nil, fmt.Errorf("canonical origin %q is not an absolute URL", origin)
	}
	e := &Engine{bucket: bucket, origin: origin, host: origin[i+3:]}
	for _, d := range staleDomains {
		d = strings.TrimRight(strings.TrimSpace(d), "/")
		if d == "" || d == origin || d == e.host {
			continue
		}
		e.stale = append(e.stale, d)
	}
	return e, nil
}

// DecodeMetadata parses a metadata payload into a JSON object, peeling the
// legacy string-encoding layer if present.
func DecodeMetadata(raw []byte) (doc map[string]any, wrapped bool, err error) {
	inner, wrapped, err := catalog.UnwrapJSON(raw)
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(inner, &doc); err != nil || doc == nil {
		return nil, wrapped, ErrNotAnObject
	}
	return doc, wrapped, nil
}

// LoadMetadata reads and decodes metadata/<id>.json.
func LoadMetadata(ctx context.Context, bucket storage.Bucket, id string) (map[string]any, error) {
	raw, err := bucket.GetObject(ctx, model.MetadataKey(id))
	if err != nil {
		return nil, err
	}
	doc, _, err := DecodeMetadata(raw)
	return doc, err
}

// RepairAllMetadata visits every object under metadata/. Objects that need no
// change are skipped without a write, so a second run reports Updated == 0.
// A listing error aborts the pass and is returned with the partial summary.
func (e *Engine) RepairAllMetadata(ctx context.Context) (Summary, error) {
	sum := Summary{Examples: []Example{}}
	for obj, err := range e.bucket.ListObjects(ctx, model.MetadataPrefix) {
		if err != nil {
			return sum, fmt.Errorf("list metadata: %w", err)
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Total++
		e.repairOne(ctx, obj.Key, &sum)
	}

	logger.Info("metadata repair finished",
		logger.Int("total", sum.Total),
		logger.Int("updated", sum.Updated),
		logger.Int("failed", sum.Failed),
		logger.Int("skipped", sum.Skipped),
		logger.Bool("dryRun", e.DryRun))
	return sum, nil
}

func (e *Engine) repairOne(ctx context.Context, key string, sum *Summary) {
	fail := func(field string, err error) {
		sum.Failed++
		sum.example(Example{Key: key, Field: field, Reason: err.Error()})
		logger.Warn("metadata repair failed", logger.Key(key), logger.ErrorField(err))
	}

	raw, err := e.bucket.GetObject(ctx, key)
	if err != nil {
		fail("", err)
		return
	}
	doc, wrapped, err := DecodeMetadata(raw)
	if err != nil {
		fail("", err)
		return
	}
	if id, _ := doc["id"].(string); id == "" {
		fail("id", ErrMissingID)
		return
	}

	changed := wrapped
	if wrapped {
		sum.example(Example{Key: key, Reason: "double-encoded payload"})
	}
	for _, field := range urlFields {
		before, ok := doc[field].(string)
		if !ok || before == "" {
			continue
		}
		after, fixed := e.fixURL(before)
		if !fixed {
			continue
		}
		if !strings.HasPrefix(after, e.origin+"/") {
			fail(field, fmt.Errorf("%w: %s", ErrNotCanonical, after))
			return
		}
		doc[field] = after
		changed = true
		sum.example(Example{Key: key, Field: field, Before: before, After: after})
	}

	if !changed {
		sum.Skipped++
		return
	}
	if e.DryRun {
		sum.Updated++
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		fail("", err)
		return
	}
	if err := e.bucket.PutObject(ctx, key, data, "application/json"); err != nil {
		fail("", err)
		return
	}
	sum.Updated++
}

// fixURL swaps the origin segment of raw when it matches a stale domain.
// Stale entries written with a scheme replace the whole origin; bare hosts
// replace scheme and host. Everything after the origin is kept byte for byte.
func (e *Engine) fixURL(raw string) (string, bool) {
	if strings.HasPrefix(raw, e.origin+"/") {
		return raw, false
	}
	for _, stale := range e.stale {
		if strings.Contains(stale, "://") {
			if rest, ok := strings.CutPrefix(raw, stale); ok && boundary(rest) {
				return e.origin + rest, true
			}
			continue
		}
		i := strings.Index(raw, "://")
		if i < 0 {
			continue
		}
		if rest, ok := strings.CutPrefix(raw[i+3:], stale); ok && boundary(rest) {
			return e.origin + rest, true
		}
	}
	return raw, false
}

// boundary reports whether rest begins where an origin may end.
func boundary(rest string) bool {
	return rest == "" || rest[0] == '/' || rest[0] == '?'
}

// Preview returns a copy of e that reports changes without writing them.
func (e *Engine) Preview() *Engine {
	c := *e
	c.DryRun = true
	return &c
}
