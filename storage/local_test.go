package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBucketPutGet(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBucket(dir, "")
	ctx := context.Background()

	require.NoError(t, b.PutObject(ctx, "metadata/track_a.json", []byte(`{"id":"track_a"}`), "application/json"))

	got, err := b.GetObject(ctx, "metadata/track_a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"track_a"}`, string(got))

	_, err = os.Stat(filepath.Join(dir, "metadata", "track_a.json"))
	assert.NoError(t, err, "expected file path layout to mirror the key")
}

func TestLocalBucketNotFound(t *testing.T) {
	b := NewLocalBucket(t.TempDir(), "")
	ctx := context.Background()

	_, err := b.GetObject(ctx, "tracks/list.json")
	assert.True(t, IsNotFound(err))

	_, err = b.HeadObject(ctx, "tracks/list.json")
	assert.True(t, IsNotFound(err))
}

func TestLocalBucketListObjects(t *testing.T) {
	b := NewLocalBucket(t.TempDir(), "")
	ctx := context.Background()

	for _, k := range []string{"tracks/track_b.mp3", "tracks/track_a.mp3", "covers/track_a.jpg"} {
		require.NoError(t, b.PutObject(ctx, k, []byte("x"), ""))
	}

	objects, err := Collect(b.ListObjects(ctx, "tracks/"))
	require.NoError(t, err)
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"tracks/track_a.mp3", "tracks/track_b.mp3"}, keys)
}

func TestLocalBucketListMissingRoot(t *testing.T) {
	b := NewLocalBucket(filepath.Join(t.TempDir(), "nope"), "")

	objects, err := Collect(b.ListObjects(context.Background(), ""))
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestLocalBucketListStopsEarly(t *testing.T) {
	b := NewLocalBucket(t.TempDir(), "")
	ctx := context.Background()
	for _, k := range []string{"a/1", "a/2", "a/3"} {
		require.NoError(t, b.PutObject(ctx, k, []byte("x"), ""))
	}

	n := 0
	for _, err := range b.ListObjects(ctx, "a/") {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/tracks/track_a.mp3",
		publicURL("https://cdn.example.com/", "http://minio:9000/beats", "/tracks/track_a.mp3"))
	assert.Equal(t, "http://minio:9000/beats/covers/track_a.jpg",
		publicURL("", "http://minio:9000/beats", "covers/track_a.jpg"))
}

func TestInspectAndPrint(t *testing.T) {
	b := NewLocalBucket(t.TempDir(), "")
	ctx := context.Background()
	require.NoError(t, b.PutObject(ctx, "tracks/track_a.mp3", make([]byte, 2048), "audio/mpeg"))
	require.NoError(t, b.PutObject(ctx, "metadata/track_a.json", []byte("{}"), "application/json"))

	objects, stats, err := Inspect(ctx, b, "")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
	assert.EqualValues(t, 2, stats.TotalObjects)
	assert.EqualValues(t, 1, stats.CountByKind["audio"])
	assert.EqualValues(t, 1, stats.CountByKind["json"])

	var buf bytes.Buffer
	PrintStats(&buf, stats)
	PrintTree(&buf, objects)
	assert.Contains(t, buf.String(), "track_a.mp3 (2.0 KB)")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 MB", FormatSize(1536*1024))
}
