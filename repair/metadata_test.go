package repair

import (
	"context"
	"errors"
	"testing"

	"beatvault/model"
	"beatvault/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://cdn.beats.test"

func newEngine(t *testing.T, b *storagetest.Bucket) *Engine {
	t.Helper()
	e, err := NewEngine(b, origin+"/", []string{"pub-123.r2.dev", "https://old.beats.test"})
	require.NoError(t, err)
	return e
}

func TestNewEngineRejectsRelativeOrigin(t *testing.T) {
	_, err := NewEngine(storagetest.NewBucket(""), "cdn.beats.test", nil)
	assert.Error(t, err)
}

func TestFixURL(t *testing.T) {
	e := newEngine(t, storagetest.NewBucket(""))
	tests := []struct {
		in, want string
		fixed    bool
	}{
		{"https://pub-123.r2.dev/tracks/track_a.mp3", origin + "/tracks/track_a.mp3", true},
		{"http://pub-123.r2.dev/covers/track_a.jpg?v=2", origin + "/covers/track_a.jpg?v=2", true},
		{"https://old.beats.test/tracks/Track%20A.mp3", origin + "/tracks/Track%20A.mp3", true},
		{origin + "/tracks/track_a.mp3", origin + "/tracks/track_a.mp3", false},
		{"https://pub-123.r2.dev.evil.test/x.mp3", "https://pub-123.r2.dev.evil.test/x.mp3", false},
		{"https://elsewhere.test/x.mp3", "https://elsewhere.test/x.mp3", false},
	}
	for _, tt := range tests {
		got, fixed := e.fixURL(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.fixed, fixed, tt.in)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	b := storagetest.NewBucket(origin)
	b.Seed(model.MetadataKey("track_a"), []byte(`{"id":"track_a","title":"A","audioUrl":"https://pub-123.r2.dev/tracks/track_a.mp3","coverUrl":"`+origin+`/covers/track_a.jpg"}`))
	e := newEngine(t, b)
	ctx := context.Background()

	first, err := e.RepairAllMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Updated: 1}, Summary{Total: first.Total, Updated: first.Updated, Failed: first.Failed, Skipped: first.Skipped})
	require.NotEmpty(t, first.Examples)
	assert.Equal(t, "audioUrl", first.Examples[0].Field)

	doc, err := LoadMetadata(ctx, b, "track_a")
	require.NoError(t, err)
	assert.Equal(t, origin+"/tracks/track_a.mp3", doc["audioUrl"])
	assert.Equal(t, "A", doc["title"])

	second, err := e.RepairAllMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, b.Puts(), 1)
}

func TestDoubleEncodedMetadataIsUnwrapped(t *testing.T) {
	raw := []byte(`"\"{\\\"id\\\":\\\"track_x\\\"}\""`)
	doc, wrapped, err := DecodeMetadata(raw)
	require.NoError(t, err)
	assert.True(t, wrapped)
	assert.Equal(t, map[string]any{"id": "track_x"}, doc)

	b := storagetest.NewBucket(origin)
	b.Seed(model.MetadataKey("track_x"), raw)
	e := newEngine(t, b)

	sum, err := e.RepairAllMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.JSONEq(t, `{"id":"track_x"}`, string(b.Get(model.MetadataKey("track_x"))))

	sum, err = e.RepairAllMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Updated)
	assert.Equal(t, 1, sum.Skipped)
}

func TestRepairFailures(t *testing.T) {
	b := storagetest.NewBucket(origin)
	b.Seed("metadata/track_bad.json", []byte(`{"id":`))
	b.Seed("metadata/track_noid.json", []byte(`{"title":"x","audioUrl":"https://pub-123.r2.dev/a.mp3"}`))
	b.Seed("metadata/track_arr.json", []byte(`["track_a"]`))
	b.Seed("metadata/track_q.json", []byte(`{"id":"track_q","audioUrl":"https://pub-123.r2.dev?x=1"}`))
	b.Seed("metadata/notes.txt", []byte(`ignored`))
	e := newEngine(t, b)

	sum, err := e.RepairAllMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 4, sum.Failed)
	assert.Zero(t, sum.Updated)
	assert.Empty(t, b.Puts(), "no partial writes")
	assert.Equal(t, `{"title":"x","audioUrl":"https://pub-123.r2.dev/a.mp3"}`, string(b.Get("metadata/track_noid.json")))
}

func TestRepairWriteFailureCountsAsFailed(t *testing.T) {
	b := storagetest.NewBucket(origin)
	key := model.MetadataKey("track_a")
	b.Seed(key, []byte(`{"id":"track_a","audioUrl":"https://pub-123.r2.dev/tracks/track_a.mp3"}`))
	b.PutErr[key] = errors.New("throttled")
	e := newEngine(t, b)

	sum, err := e.RepairAllMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Zero(t, sum.Updated)
}

func TestRepairListingErrorAborts(t *testing.T) {
	b := storagetest.NewBucket(origin)
	b.ListErr[model.MetadataPrefix] = errors.New("timeout")
	e := newEngine(t, b)

	_, err := e.RepairAllMetadata(context.Background())
	assert.Error(t, err)
}

func TestDryRunDoesNotWrite(t *testing.T) {
	b := storagetest.NewBucket(origin)
	b.Seed(model.MetadataKey("track_a"), []byte(`{"id":"track_a","coverUrl":"https://old.beats.test/covers/track_a.jpg"}`))
	e := newEngine(t, b)
	e.DryRun = true

	sum, err := e.RepairAllMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.Empty(t, b.Puts())
}
