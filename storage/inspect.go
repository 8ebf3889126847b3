package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	Prefix       string
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	SizeByKind   map[string]int64 // audio, image, json, other
	CountByKind  map[string]int64
}

// Inspect lists everything under prefix and aggregates operator statistics.
func Inspect(ctx context.Context, b Bucket, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{
		Prefix:      prefix,
		SizeByKind:  make(map[string]int64),
		CountByKind: make(map[string]int64),
	}
	var objects []ObjectInfo

	for object, err := range b.ListObjects(ctx, prefix) {
		if err != nil {
			return nil, nil, err
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
		kind := inferKind(object.Key)
		stats.SizeByKind[kind] += object.Size
		stats.CountByKind[kind]++
		objects = append(objects, object)
	}
	return objects, stats, nil
}

// PrintStats writes a human-readable report of stats to w.
func PrintStats(w io.Writer, stats *BucketStats) {
	fmt.Fprintf(w, "prefix:        %q\n", stats.Prefix)
	fmt.Fprintf(w, "objects:       %d\n", stats.TotalObjects)
	fmt.Fprintf(w, "total size:    %s\n", FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(w, "last modified: %s\n", stats.LastModified.Format(time.RFC3339))
	}

	kinds := make([]string, 0, len(stats.CountByKind))
	for k := range stats.CountByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-6s %6d files  %s\n", k, stats.CountByKind[k], FormatSize(stats.SizeByKind[k]))
	}
}

// PrintTree prints objects grouped by directory.
func PrintTree(w io.Writer, objects []ObjectInfo) {
	byDir := make(map[string][]ObjectInfo)
	for _, obj := range objects {
		dir := path.Dir(obj.Key)
		byDir[dir] = append(byDir[dir], obj)
	}
	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		indent := ""
		if dir != "." {
			indent = strings.Repeat("  ", strings.Count(dir, "/"))
			fmt.Fprintf(w, "%s%s/\n", indent, dir)
		}
		entries := byDir[dir]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
		for _, obj := range entries {
			fmt.Fprintf(w, "%s  %s (%s)\n", indent, path.Base(obj.Key), FormatSize(obj.Size))
		}
	}
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// inferKind 从文件名推断内容类型
func inferKind(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3", ".wav", ".flac", ".m4a":
		return "audio"
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "image"
	case ".json":
		return "json"
	default:
		return "other"
	}
}
