package model

import (
	"encoding/json"
	"time"
)

// RecentLogCapacity bounds the scheduler's run log.
const RecentLogCapacity = 50

// SourceConfig is one recurring ingestion source.
type SourceConfig struct {
	ID            string     `json:"id" yaml:"id"`
	Locator       string     `json:"locator" yaml:"locator"`
	Kind          string     `json:"kind" yaml:"kind"` // channel | playlist
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty" yaml:"-"`
	Active        bool       `json:"active" yaml:"active"`
}

// LogEntry summarizes one scheduler run (or a notable state change).
type LogEntry struct {
	At       time.Time `json:"at"`
	Message  string    `json:"message"`
	Imported int       `json:"imported"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Error    string    `json:"error,omitempty"`
}

// SchedulerState is persisted at scheduler/scheduler.json.
// NextRunAt is non-nil iff Active.
type SchedulerState struct {
	Active     bool           `json:"active"`
	NextRunAt  *time.Time     `json:"nextRunAt"`
	Sources    []SourceConfig `json:"sources"`
	RecentLogs *LogRing       `json:"recentLogs"`
}

// NewSchedulerState returns the initial, inactive state.
func NewSchedulerState() SchedulerState {
	return SchedulerState{Sources: []SourceConfig{}, RecentLogs: NewLogRing(RecentLogCapacity)}
}

// Normalize fills nil collections and clears a NextRunAt left on an inactive
// state. An active state without NextRunAt is left for the scheduler to re-arm.
func (s *SchedulerState) Normalize() {
	if s.Sources == nil {
		s.Sources = []SourceConfig{}
	}
	if s.RecentLogs == nil {
		s.RecentLogs = NewLogRing(RecentLogCapacity)
	}
	if !s.Active {
		s.NextRunAt = nil
	}
}

// LogRing is a fixed-capacity deque of log entries, newest first. Pushing onto
// a full ring overwrites the oldest entry.
type LogRing struct {
	buf   []LogEntry
	head  int // index of the newest entry
	count int
}

// NewLogRing creates an empty ring with the given capacity.
func NewLogRing(capacity int) *LogRing {
	if capacity <= 0 {
		capacity = RecentLogCapacity
	}
	return &LogRing{buf: make([]LogEntry, capacity), head: -1}
}

// Push adds e as the newest entry.
func (r *LogRing) Push(e LogEntry) {
	r.head = (r.head + 1) % len(r.buf)
	r.buf[r.head] = e
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of stored entries.
func (r *LogRing) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *LogRing) Cap() int { return len(r.buf) }

// Entries returns the stored entries, newest first.
func (r *LogRing) Entries() []LogEntry {
	out := make([]LogEntry, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// MarshalJSON encodes the ring as a newest-first array.
func (r *LogRing) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Entries())
}

// UnmarshalJSON restores a ring from a newest-first array, keeping at most
// RecentLogCapacity entries.
func (r *LogRing) UnmarshalJSON(data []byte) error {
	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	fresh := NewLogRing(RecentLogCapacity)
	if len(entries) > fresh.Cap() {
		entries = entries[:fresh.Cap()]
	}
	for i := len(entries) - 1; i >= 0; i-- {
		fresh.Push(entries[i])
	}
	*r = *fresh
	return nil
}
