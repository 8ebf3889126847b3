// Package scheduler owns the persisted scheduler state: the on/off flag, the
// next eligible run and the recurring sources. Tick is driven from outside
// (cron, HTTP, CLI) and imports every active source when due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"beatvault/ingest"
	"beatvault/logger"
	"beatvault/model"
	"beatvault/state"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrSourceExists   = errors.New("source already exists")
)

// Importer runs a collection import. *ingest.Pipeline satisfies it.
type Importer interface {
	ImportFromCollection(ctx context.Context, coll ingest.Collection, max int) (ingest.BatchResult, error)
}

// Options configures a Scheduler.
type Options struct {
	Interval      time.Duration // re-arm delay, 24h by default
	CollectionMax int           // items listed per source per run
	Guard         Guard         // optional cross-process run guard
}

// SourceReport is the outcome of one source within a tick.
type SourceReport struct {
	SourceID string `json:"sourceId"`
	Imported int    `json:"imported"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// TickReport describes what a Tick did.
type TickReport struct {
	Ran       bool           `json:"ran"`
	Reason    string         `json:"reason,omitempty"` // why it did not run
	Imported  int            `json:"imported"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Sources   []SourceReport `json:"sources"`
	NextRunAt *time.Time     `json:"nextRunAt"`
}

// Scheduler reads its state before and writes it after every mutation.
type Scheduler struct {
	store    *state.Store
	importer Importer
	opts     Options

	stateMu sync.Mutex // serializes read-modify-write of the state document
	runMu   sync.Mutex // held for the duration of a tick

	now func() time.Time
}

// New creates a Scheduler.
func New(store *state.Store, importer Importer, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.CollectionMax <= 0 {
		opts.CollectionMax = 25
	}
	return &Scheduler{
		store:    store,
		importer: importer,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// load reads the state document. rearmed reports that an active document
// lacked nextRunAt and was given one; the caller must persist it.
func (s *Scheduler) load(ctx context.Context) (st model.SchedulerState, rearmed bool, err error) {
	st, err = state.Load(ctx, s.store, model.SchedulerKey, model.NewSchedulerState())
	if err != nil {
		return st, false, err
	}
	st.Normalize()
	if st.Active && st.NextRunAt == nil {
		next := s.now().Add(s.opts.Interval)
		st.NextRunAt = &next
		rearmed = true
	}
	return st, rearmed, nil
}

func (s *Scheduler) save(ctx context.Context, st model.SchedulerState) error {
	return s.store.Save(ctx, model.SchedulerKey, st)
}

// mutate applies fn to the freshly loaded state and persists the result.
func (s *Scheduler) mutate(ctx context.Context, fn func(st *model.SchedulerState) error) (model.SchedulerState, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	st, _, err := s.load(ctx)
	if err != nil {
		return st, err
	}
	if err := fn(&st); err != nil {
		return st, err
	}
	if err := s.save(ctx, st); err != nil {
		return st, err
	}
	return st, nil
}

// Status returns the persisted state. An active document found without
// nextRunAt is re-armed and written back on first sight.
func (s *Scheduler) Status(ctx context.Context) (model.SchedulerState, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	st, rearmed, err := s.load(ctx)
	if err != nil || !rearmed {
		return st, err
	}
	logger.Warn("scheduler state was active without nextRunAt; re-armed", logger.Time("nextRunAt", *st.NextRunAt))
	if err := s.save(ctx, st); err != nil {
		return st, fmt.Errorf("persist re-armed scheduler state: %w", err)
	}
	return st, nil
}

// Activate arms the scheduler: the first run is one interval from now.
func (s *Scheduler) Activate(ctx context.Context) (model.SchedulerState, error) {
	return s.mutate(ctx, func(st *model.SchedulerState) error {
		now := s.now()
		next := now.Add(s.opts.Interval)
		st.Active = true
		st.NextRunAt = &next
		st.RecentLogs.Push(model.LogEntry{At: now, Message: "scheduler activated"})
		logger.Info("scheduler activated", logger.Time("nextRunAt", next))
		return nil
	})
}

// Deactivate disarms the scheduler.
func (s *Scheduler) Deactivate(ctx context.Context) (model.SchedulerState, error) {
	return s.mutate(ctx, func(st *model.SchedulerState) error {
		st.Active = false
		st.NextRunAt = nil
		st.RecentLogs.Push(model.LogEntry{At: s.now(), Message: "scheduler deactivated"})
		logger.Info("scheduler deactivated")
		return nil
	})
}

// Tick runs every active source if the scheduler is armed and due, then
// re-arms. Otherwise it returns without touching the state. Overlapping
// ticks in this process, or under the Guard elsewhere, are skipped.
//
// If ctx expires mid-run the state is persisted without re-arming, so the
// next trigger retries; sources that finished keep their new lastCheckedAt.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	report := TickReport{Sources: []SourceReport{}}

	if !s.runMu.TryLock() {
		report.Reason = "tick already running"
		return report, nil
	}
	defer s.runMu.Unlock()

	if s.opts.Guard != nil {
		release, ok, err := s.opts.Guard.TryAcquire(ctx)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Reason = "tick running elsewhere"
			return report, nil
		}
		defer release()
	}

	st, err := s.Status(ctx)
	if err != nil {
		return report, err
	}
	report.NextRunAt = st.NextRunAt
	if !st.Active {
		report.Reason = "inactive"
		return report, nil
	}
	started := s.now()
	if started.Before(*st.NextRunAt) {
		report.Reason = "not due"
		return report, nil
	}

	report.Ran = true
	checked := make(map[string]time.Time)
	var errs []string
	var runErr error
	for _, src := range st.Sources {
		if !src.Active {
			continue
		}
		if runErr = ctx.Err(); runErr != nil {
			break
		}

		res, err := s.importer.ImportFromCollection(ctx, ingest.Collection{
			ID:      src.ID,
			Locator: src.Locator,
			Kind:    src.Kind,
			Since:   src.LastCheckedAt,
		}, s.opts.CollectionMax)

		sr := SourceReport{SourceID: src.ID, Imported: res.Imported, Failed: res.Failed, Skipped: res.Skipped}
		if err != nil {
			sr.Error = err.Error()
			errs = append(errs, src.ID+": "+err.Error())
			if ctx.Err() != nil {
				runErr = ctx.Err()
			}
		} else {
			checked[src.ID] = s.now()
		}
		report.Sources = append(report.Sources, sr)
		report.Imported += res.Imported
		report.Failed += res.Failed
		report.Skipped += res.Skipped
	}

	// Persist even when ctx is done.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	final, err := s.mutate(pctx, func(cur *model.SchedulerState) error {
		for i := range cur.Sources {
			if at, ok := checked[cur.Sources[i].ID]; ok {
				cur.Sources[i].LastCheckedAt = &at
			}
		}
		entry := model.LogEntry{
			At:       started,
			Message:  fmt.Sprintf("processed %d source(s)", len(report.Sources)),
			Imported: report.Imported,
			Failed:   report.Failed,
			Skipped:  report.Skipped,
			Error:    strings.Join(errs, "; "),
		}
		if runErr != nil {
			entry.Message = "run interrupted; will retry"
		}
		cur.RecentLogs.Push(entry)
		if cur.Active && runErr == nil {
			next := s.now().Add(s.opts.Interval)
			cur.NextRunAt = &next
		}
		return nil
	})
	report.NextRunAt = final.NextRunAt
	if err != nil {
		return report, fmt.Errorf("persist scheduler state: %w", err)
	}

	logger.Info("scheduler tick finished",
		logger.Int("sources", len(report.Sources)),
		logger.Int("imported", report.Imported),
		logger.Int("failed", report.Failed),
		logger.Int("skipped", report.Skipped),
		logger.ErrorField(runErr))
	if runErr != nil {
		return report, fmt.Errorf("tick interrupted: %w", runErr)
	}
	return report, nil
}

// AddSource registers a recurring source. A missing id is generated and a
// missing kind is inferred from the locator.
func (s *Scheduler) AddSource(ctx context.Context, src model.SourceConfig) (model.SourceConfig, error) {
	src.Locator = strings.TrimSpace(src.Locator)
	if src.Locator == "" {
		return src, errors.New("source locator is required")
	}
	switch src.Kind {
	case "":
		src.Kind = inferKind(src.Locator)
	case model.SourceChannel, model.SourcePlaylist:
	default:
		return src, fmt.Errorf("unknown source kind %q", src.Kind)
	}
	if src.ID == "" {
		src.ID = "src_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	_, err := s.mutate(ctx, func(st *model.SchedulerState) error {
		for _, cur := range st.Sources {
			if cur.ID == src.ID || cur.Locator == src.Locator {
				return fmt.Errorf("%w: %s", ErrSourceExists, cur.ID)
			}
		}
		st.Sources = append(st.Sources, src)
		return nil
	})
	return src, err
}

// RemoveSource deletes a source by id.
func (s *Scheduler) RemoveSource(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, func(st *model.SchedulerState) error {
		for i, cur := range st.Sources {
			if cur.ID == id {
				st.Sources = append(st.Sources[:i], st.Sources[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	})
	return err
}

// SetSourceActive enables or pauses a source.
func (s *Scheduler) SetSourceActive(ctx context.Context, id string, active bool) error {
	_, err := s.mutate(ctx, func(st *model.SchedulerState) error {
		for i := range st.Sources {
			if st.Sources[i].ID == id {
				st.Sources[i].Active = active
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	})
	return err
}

func inferKind(locator string) string {
	if strings.Contains(locator, "list=") || strings.Contains(locator, "/playlist") {
		return model.SourcePlaylist
	}
	return model.SourceChannel
}
