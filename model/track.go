package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object keys. These layouts are shared with data already in the bucket.
const (
	AudioPrefix    = "tracks/"
	CoverPrefix    = "covers/"
	MetadataPrefix = "metadata/"
	IndexKey       = "tracks/list.json"
	SchedulerKey   = "scheduler/scheduler.json"
	LedgerKey      = "imports/ledger.json"

	TrackIDPrefix = "track_"
)

var trackIDPattern = regexp.MustCompile(`^track_[A-Za-z0-9_-]+$`)

// NewTrackID returns a fresh, globally unique track id.
func NewTrackID() string {
	return TrackIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsTrackID reports whether s has the track id format.
func IsTrackID(s string) bool {
	return trackIDPattern.MatchString(s)
}

func AudioKey(id string) string    { return AudioPrefix + id + ".mp3" }
func CoverKey(id string) string    { return CoverPrefix + id + ".jpg" }
func MetadataKey(id string) string { return MetadataPrefix + id + ".json" }

// LicenseType is one of the five license tiers offered on a beat.
type LicenseType string

const (
	LicenseBasic     LicenseType = "basic"
	LicensePremium   LicenseType = "premium"
	LicenseTrackout  LicenseType = "trackout"
	LicenseUnlimited LicenseType = "unlimited"
	LicenseExclusive LicenseType = "exclusive"
)

// ParseLicenseType validates a license tier name.
func ParseLicenseType(s string) (LicenseType, error) {
	switch l := LicenseType(strings.ToLower(strings.TrimSpace(s))); l {
	case LicenseBasic, LicensePremium, LicenseTrackout, LicenseUnlimited, LicenseExclusive:
		return l, nil
	}
	return "", fmt.Errorf("unknown license type %q", s)
}

// Track is the metadata document stored at metadata/<id>.json.
type Track struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Artist          string      `json:"artist"`
	BPM             int         `json:"bpm,omitempty"`
	Key             string      `json:"key,omitempty"`
	Duration        string      `json:"duration"` // m:ss
	DurationSeconds int         `json:"durationSeconds"`
	Tags            []string    `json:"tags"`
	AudioURL        string      `json:"audioUrl"`
	CoverURL        string      `json:"coverUrl"`
	AudioKey        string      `json:"audioKey"`
	CoverKey        string      `json:"coverKey"`
	Price           float64     `json:"price"`
	LicenseType     LicenseType `json:"licenseType"`
	SourceURL       string      `json:"sourceUrl,omitempty"`
	SourceID        string      `json:"sourceId,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// NormalizeTags trims, lower-cases and de-duplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
