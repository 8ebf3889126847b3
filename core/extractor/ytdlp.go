package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"beatvault/core/utils"
	"beatvault/logger"
)

const (
	audioBase = "audio"
	coverBase = "cover"
)

// YTDLP implements Extractor with the yt-dlp binary.
type YTDLP struct {
	binPath string
	timeout time.Duration
}

// NewYTDLP creates a YTDLP. timeout bounds a single invocation; zero means
// the caller's context alone decides.
func NewYTDLP(binPath string, timeout time.Duration) *YTDLP {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &YTDLP{binPath: binPath, timeout: timeout}
}

// ytInfo is the subset of the tool's JSON description we read.
type ytInfo struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Track      string   `json:"track"`
	Artist     string   `json:"artist"`
	Creator    string   `json:"creator"`
	Duration   float64  `json:"duration"`
	Tags       []string `json:"tags"`
	Thumbnail  string   `json:"thumbnail"`
	WebpageURL string   `json:"webpage_url"`
	UploadDate string   `json:"upload_date"`
}

func (y *YTDLP) run(ctx context.Context, args ...string) ([]byte, error) {
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, y.binPath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	logger.Debug("executing extractor", logger.String("cmd", y.binPath+" "+strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extractor interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("extractor failed: %w\nstderr: %s", err, tail(stderr.String(), 800))
	}
	return out.Bytes(), nil
}

// Extract downloads one item as mp3 plus a jpg thumbnail into workDir.
func (y *YTDLP) Extract(ctx context.Context, locator, workDir string) (*Item, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory %s: %w", workDir, err)
	}

	args := []string{
		"-o", filepath.Join(workDir, audioBase+".%(ext)s"),
		"-o", "thumbnail:" + filepath.Join(workDir, coverBase+".%(ext)s"),
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"--dump-json",
		"-x", "--audio-format", "mp3",
		"--write-thumbnail", "--convert-thumbnails", "jpg",
		locator,
	}
	out, err := y.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var info ytInfo
	if err := json.Unmarshal(lastJSONLine(out), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extractor output: %w", err)
	}

	item := &Item{
		SourceID:        info.ID,
		Title:           firstNonEmpty(info.Track, info.Title),
		Artist:          firstNonEmpty(info.Artist, info.Creator),
		DurationSeconds: int(math.Round(info.Duration)),
		Tags:            info.Tags,
		WebpageURL:      info.WebpageURL,
		ThumbnailURL:    info.Thumbnail,
		UploadDate:      info.UploadDate,
		AudioPath:       filepath.Join(workDir, audioBase+".mp3"),
	}
	if _, err := os.Stat(item.AudioPath); err != nil {
		return nil, fmt.Errorf("%w: audio file not written: %v", ErrIncomplete, err)
	}

	cover := filepath.Join(workDir, coverBase+".jpg")
	if _, err := os.Stat(cover); err == nil {
		item.ImagePath = cover
	} else if item.ThumbnailURL != "" {
		if err := utils.DownloadFile(ctx, item.ThumbnailURL, cover); err != nil {
			logger.Warn("thumbnail download failed", logger.String("url", item.ThumbnailURL), logger.ErrorField(err))
		} else {
			item.ImagePath = cover
		}
	}
	return item, nil
}

// ListCollection prints member ids without resolving each item. Flat
// entries usually lack upload_date, so --dateafter filters little or nothing
// here; callers dedup against the ledger.
func (y *YTDLP) ListCollection(ctx context.Context, locator string, since *time.Time, max int) ([]string, error) {
	args := []string{"--flat-playlist", "--print", "id", "--ignore-errors"}
	if max > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(max))
	}
	if since != nil {
		args = append(args, "--dateafter", since.UTC().Format("20060102"))
	}
	args = append(args, locator)

	out, err := y.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if !IsVideoID(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if max > 0 && len(ids) == max {
			break
		}
	}
	return ids, sc.Err()
}

func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if l := bytes.TrimSpace(lines[i]); len(l) > 0 && l[0] == '{' {
			return l
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
