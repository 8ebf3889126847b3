package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"beatvault/model"
	"beatvault/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCache struct {
	mu sync.Mutex
	n  int
}

func (c *countingCache) Invalidate(context.Context) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func seedTrack(b *storagetest.Bucket, id string, withMeta bool) {
	b.Seed(model.AudioKey(id), []byte("mp3"))
	if withMeta {
		b.Seed(model.MetadataKey(id), []byte(`{"id":"`+id+`"}`))
	}
}

func TestUnwrapJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wrapped bool
		wantErr bool
	}{
		{name: "plain array", in: `["track_a"]`, want: `["track_a"]`},
		{name: "one layer", in: `"[\"track_a\"]"`, want: `["track_a"]`, wrapped: true},
		{name: "two layers", in: `"\"{\\\"id\\\":\\\"track_x\\\"}\""`, want: `{"id":"track_x"}`, wrapped: true},
		{name: "plain string", in: `"hello"`, want: `"hello"`},
		{name: "garbage", in: `{"id":`, wantErr: true},
		{name: "wrapped garbage", in: `"[\"track_a\""`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, wrapped, err := UnwrapJSON([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(doc))
			assert.Equal(t, tt.wrapped, wrapped)
		})
	}
}

func TestDecodeIndex(t *testing.T) {
	snap, err := Decode([]byte(`["track_b","track_a","track_b","bogus",7]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"track_b", "track_a"}, snap.IDs)
	assert.Equal(t, 1, snap.Dupes)
	assert.Len(t, snap.Invalid, 2)

	snap, err = Decode([]byte(`"[\"track_a\"]"`))
	require.NoError(t, err)
	assert.True(t, snap.Wrapped)
	assert.Equal(t, []string{"track_a"}, snap.IDs)

	_, err = Decode([]byte(`{"tracks":[]}`))
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestAppendMergesAndUnwraps(t *testing.T) {
	b := storagetest.NewBucket("https://cdn.test")
	b.Seed(model.IndexKey, []byte(`"[\"track_a\"]"`))
	cache := &countingCache{}
	idx := NewIndex(b, cache)
	ctx := context.Background()

	merged, err := idx.Append(ctx, "track_b", "track_a")
	require.NoError(t, err)
	assert.Equal(t, []string{"track_a", "track_b"}, merged)
	assert.Equal(t, `["track_a","track_b"]`, string(b.Get(model.IndexKey)))
	assert.Equal(t, 1, cache.n)

	// No change, no write.
	_, err = idx.Append(ctx, "track_a")
	require.NoError(t, err)
	assert.Len(t, b.Puts(), 1)
}

func TestAppendCreatesMissingIndex(t *testing.T) {
	b := storagetest.NewBucket("")
	idx := NewIndex(b, nil)

	_, err := idx.Append(context.Background(), "track_a")
	require.NoError(t, err)
	assert.Equal(t, `["track_a"]`, string(b.Get(model.IndexKey)))
}

func TestAppendFailsClosedOnCorruptIndex(t *testing.T) {
	b := storagetest.NewBucket("")
	b.Seed(model.IndexKey, []byte(`{"not":"an array"}`))
	idx := NewIndex(b, nil)

	_, err := idx.Append(context.Background(), "track_a")
	require.ErrorIs(t, err, ErrCorruptIndex)
	assert.Empty(t, b.Puts())
	assert.Equal(t, `{"not":"an array"}`, string(b.Get(model.IndexKey)))
}

func TestAppendRejectsInvalidID(t *testing.T) {
	idx := NewIndex(storagetest.NewBucket(""), nil)
	_, err := idx.Append(context.Background(), "../evil")
	assert.Error(t, err)
}

func TestConcurrentAppendsConverge(t *testing.T) {
	b := storagetest.NewBucket("")
	idx := NewIndex(b, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"track_a", "track_b", "track_c", "track_a"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = idx.Append(ctx, id)
		}(id)
	}
	wg.Wait()

	snap, err := idx.Read(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Dupes)
	assert.Empty(t, snap.Invalid)
	assert.NotEmpty(t, snap.IDs)
}

func TestRebuildIsIdempotent(t *testing.T) {
	b := storagetest.NewBucket("")
	seedTrack(b, "track_c", true)
	seedTrack(b, "track_a", true)
	seedTrack(b, "track_b", true)
	r := NewRebuilder(b, NewIndex(b, nil), nil)
	ctx := context.Background()

	first, err := r.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.True(t, first.OK)
	assert.Equal(t, 3, first.TrackCount)
	out1 := b.Get(model.IndexKey)
	assert.Equal(t, `["track_a","track_b","track_c"]`, string(out1))

	second, err := r.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, out1, b.Get(model.IndexKey))
	assert.Empty(t, second.Added)
	assert.Empty(t, second.Removed)
}

func TestRebuildRefusesEmptyListing(t *testing.T) {
	b := storagetest.NewBucket("")
	b.Seed(model.IndexKey, []byte(`["track_a","track_b"]`))
	cache := &countingCache{}
	r := NewRebuilder(b, NewIndex(b, cache), nil)

	report, err := r.RebuildIndex(context.Background())
	require.ErrorIs(t, err, ErrEmptyListing)
	assert.False(t, report.OK)
	assert.Empty(t, b.Puts())
	assert.Equal(t, `["track_a","track_b"]`, string(b.Get(model.IndexKey)))
	assert.Zero(t, cache.n)
}

func TestRebuildAbortsOnListingError(t *testing.T) {
	b := storagetest.NewBucket("")
	seedTrack(b, "track_a", true)
	b.Seed(model.IndexKey, []byte(`["track_a"]`))
	b.ListErr["legacy/"] = errors.New("connection reset")
	r := NewRebuilder(b, NewIndex(b, nil), []string{"tracks/", "legacy/"})

	report, err := r.RebuildIndex(context.Background())
	require.Error(t, err)
	assert.False(t, report.OK)
	assert.Empty(t, b.Puts())
}

func TestRebuildDedupsAcrossPrefixes(t *testing.T) {
	b := storagetest.NewBucket("")
	b.Seed("tracks/track_a.mp3", []byte("x"))
	b.Seed("legacy/tracks/track_a.mp3", []byte("x"))
	b.Seed("legacy/tracks/track_b.mp3", []byte("x"))
	r := NewRebuilder(b, NewIndex(b, nil), []string{"tracks/", "legacy/tracks/"})

	report, err := r.RebuildIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TrackCount)
	assert.Equal(t, `["track_a","track_b"]`, string(b.Get(model.IndexKey)))
}

func TestRebuildRejectsAndReports(t *testing.T) {
	b := storagetest.NewBucket("")
	seedTrack(b, "track_a", true)
	seedTrack(b, "track_b", false)
	b.Seed("tracks/readme.txt", []byte("x"))
	b.Seed("tracks/not-a-track.mp3", []byte("x"))
	b.Seed("tracks/nested/track_z.mp3", []byte("x"))
	b.Seed(model.MetadataKey("track_gone"), []byte(`{"id":"track_gone"}`))
	b.Seed(model.IndexKey, []byte(`["track_a","track_old"]`))
	r := NewRebuilder(b, NewIndex(b, nil), nil)

	report, err := r.RebuildIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TrackCount)
	assert.Equal(t, 3, report.Rejected)
	assert.Equal(t, []string{"track_b"}, report.Added)
	assert.Equal(t, []string{"track_old"}, report.Removed)
	assert.Equal(t, []string{"track_gone"}, report.OrphanMetadata)
	assert.Equal(t, []string{"track_b"}, report.MissingMetadata)
}

func TestRebuildReplacesCorruptIndex(t *testing.T) {
	b := storagetest.NewBucket("")
	seedTrack(b, "track_a", true)
	b.Seed(model.IndexKey, []byte(`{"broken":true}`))
	r := NewRebuilder(b, NewIndex(b, nil), nil)

	report, err := r.RebuildIndex(context.Background())
	require.NoError(t, err)
	assert.True(t, report.PreviousCorrupt)
	assert.Equal(t, `["track_a"]`, string(b.Get(model.IndexKey)))
}
