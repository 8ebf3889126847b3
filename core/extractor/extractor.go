// Package extractor wraps the external media extraction tool. Given a single
// item it produces an audio file, a thumbnail and a JSON description; given a
// channel or playlist it lists member item ids.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrIncomplete is returned when the tool succeeded but the description is
// missing a field the catalog requires.
var ErrIncomplete = errors.New("extraction result incomplete")

// Item is the description of one extracted media item.
type Item struct {
	SourceID        string
	Title           string
	Artist          string
	DurationSeconds int
	Tags            []string
	WebpageURL      string
	ThumbnailURL    string
	UploadDate      string // YYYYMMDD as reported by the tool

	AudioPath string // local mp3
	ImagePath string // local jpg, empty when no thumbnail was written
}

// Extractor is the black-box extraction collaborator.
type Extractor interface {
	// Extract downloads locator into workDir.
	Extract(ctx context.Context, locator, workDir string) (*Item, error)
	// ListCollection returns member item ids of a channel or playlist,
	// newest first. since is a hint: listings may still include older
	// items, and the import ledger decides what is new.
	ListCollection(ctx context.Context, locator string, since *time.Time, max int) ([]string, error)
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// IsVideoID reports whether s looks like a bare video id.
func IsVideoID(s string) bool { return videoIDPattern.MatchString(s) }

// ParseVideoID derives the external source item id from a locator. It
// accepts bare ids, watch URLs, short links, shorts and embed URLs.
func ParseVideoID(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if IsVideoID(locator) {
		return locator, nil
	}

	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("unrecognized locator %q", locator)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
			id = parts[1]
		}
	}
	if !IsVideoID(id) {
		return "", fmt.Errorf("no video id in locator %q", locator)
	}
	return id, nil
}

// WatchURL is the canonical single-item locator for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
