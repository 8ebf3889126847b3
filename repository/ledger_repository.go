package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"beatvault/core/utils"
	"beatvault/logger"
	"beatvault/model"
	"beatvault/state"
	"beatvault/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCorruptLedger is returned when the stored ledger cannot be decoded.
// Appends refuse to overwrite it; Reset is the way out.
var ErrCorruptLedger = errors.New("import ledger is corrupt")

// ImportLedger records which external items were already imported.
type ImportLedger interface {
	// Find returns the entry for sourceItemID, or nil when absent.
	Find(ctx context.Context, sourceItemID string) (*model.ImportRecord, error)
	// Append records rec. inserted is false when an entry for the same
	// source item already existed; the existing entry is kept.
	Append(ctx context.Context, rec *model.ImportRecord) (inserted bool, err error)
	// List returns every entry, newest first.
	List(ctx context.Context) ([]*model.ImportRecord, error)
	// Reset clears the ledger and reports how many entries were removed.
	Reset(ctx context.Context) (int, error)
}

// ========== State store ledger ==========

// StateLedger keeps the ledger as one JSON array in the durable state store.
// Writes within a process are serialized; across processes the store is
// last-writer-wins, which the pipeline tolerates.
type StateLedger struct {
	store *state.Store
	mu    sync.Mutex
}

// NewStateLedger creates a ledger under imports/ledger.json.
func NewStateLedger(store *state.Store) *StateLedger {
	return &StateLedger{store: store}
}

func (l *StateLedger) load(ctx context.Context) ([]*model.ImportRecord, error) {
	data, err := l.store.LoadRaw(ctx, model.LedgerKey)
	if storage.IsNotFound(err) {
		return []*model.ImportRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	entries := []*model.ImportRecord{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLedger, err)
	}
	return entries, nil
}

func (l *StateLedger) Find(ctx context.Context, sourceItemID string) (*model.ImportRecord, error) {
	entries, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e != nil && e.SourceItemID == sourceItemID {
			return e, nil
		}
	}
	return nil, nil
}

func (l *StateLedger) Append(ctx context.Context, rec *model.ImportRecord) (bool, error) {
	if rec.SourceItemID == "" {
		return false, errors.New("ledger entry has no source item id")
	}
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var inserted bool
	err := utils.Retry(ctx, "ledger append", utils.DefaultRetry, func(ctx context.Context) error {
		entries, err := l.load(ctx)
		if errors.Is(err, ErrCorruptLedger) {
			return utils.Permanent(err)
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e != nil && e.SourceItemID == rec.SourceItemID {
				inserted = false
				return nil
			}
		}
		if err := l.store.Save(ctx, model.LedgerKey, append(entries, rec)); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (l *StateLedger) List(ctx context.Context) ([]*model.ImportRecord, error) {
	entries, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e != nil {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ImportedAt.After(out[j].ImportedAt) })
	return out, nil
}

func (l *StateLedger) Reset(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load(ctx)
	if errors.Is(err, ErrCorruptLedger) {
		logger.Warn("clearing corrupt import ledger", logger.ErrorField(err))
		entries = nil
	} else if err != nil {
		return 0, err
	}
	if err := l.store.Save(ctx, model.LedgerKey, []*model.ImportRecord{}); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ========== GORM ledger ==========

// gormLedger stores the ledger in MySQL; the unique index on source_item_id
// makes Append a single idempotent upsert.
type gormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a GORM-backed ledger. The table must be migrated.
func NewGormLedger(db *gorm.DB) ImportLedger {
	return &gormLedger{db: db}
}

func (r *gormLedger) Find(ctx context.Context, sourceItemID string) (*model.ImportRecord, error) {
	var rec model.ImportRecord
	err := r.db.WithContext(ctx).
		Where("source_item_id = ?", sourceItemID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *gormLedger) Append(ctx context.Context, rec *model.ImportRecord) (bool, error) {
	if rec.SourceItemID == "" {
		return false, errors.New("ledger entry has no source item id")
	}
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}

	var inserted bool
	err := utils.Retry(ctx, "ledger append", utils.DefaultRetry, func(ctx context.Context) error {
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_item_id"}}, DoNothing: true}).
			Create(rec)
		if res.Error != nil {
			return fmt.Errorf("upsert ledger entry: %w", res.Error)
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	return inserted, err
}

func (r *gormLedger) List(ctx context.Context) ([]*model.ImportRecord, error) {
	var recs []*model.ImportRecord
	err := r.db.WithContext(ctx).
		Order("imported_at DESC").
		Find(&recs).Error
	return recs, err
}

func (r *gormLedger) Reset(ctx context.Context) (int, error) {
	res := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.ImportRecord{})
	return int(res.RowsAffected), res.Error
}
