package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatvault/cache"
	"beatvault/catalog"
	"beatvault/config"
	"beatvault/core/auth"
	"beatvault/core/extractor"
	"beatvault/core/utils"
	"beatvault/ingest"
	"beatvault/metrics"
	"beatvault/model"
	"beatvault/repair"
	"beatvault/repository"
	"beatvault/scheduler"
	"beatvault/state"
	"beatvault/storage/storagetest"
)

const (
	origin   = "https://cdn.beats.test"
	password = "hunter2"
	videoA   = "aaaaaaaaaaa"
	videoB   = "bbbbbbbbbbb"
)

type stubExtractor struct {
	items map[string]extractor.Item
}

func (s *stubExtractor) Extract(_ context.Context, locator, workDir string) (*extractor.Item, error) {
	id, err := extractor.ParseVideoID(locator)
	if err != nil {
		return nil, err
	}
	item, ok := s.items[id]
	if !ok {
		return nil, errors.New("video unavailable")
	}
	item.SourceID = id
	item.AudioPath = filepath.Join(workDir, "audio.mp3")
	if err := os.WriteFile(item.AudioPath, []byte("mp3"), 0644); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *stubExtractor) ListCollection(context.Context, string, *time.Time, int) ([]string, error) {
	return []string{videoA, videoB}, nil
}

type testServer struct {
	t       *testing.T
	bucket  *storagetest.Bucket
	redis   *miniredis.Miniredis
	metrics *metrics.Metrics
	reg     *prometheus.Registry
	handler http.Handler
}

func newTestServer(t *testing.T, overrides ...func(*config.Config)) *testServer {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	cfg := &config.Config{
		StateBackend:      config.BackendRemote,
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTTTL:            time.Hour,
		TickTimeout:       time.Minute,
		CollectionMax:     5,
	}
	for _, override := range overrides {
		override(cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	indexCache := cache.NewIndexCache(rdb, time.Minute)

	b := storagetest.NewBucket(origin)
	store := state.New(config.BackendRemote, b)
	idx := catalog.NewIndex(b, indexCache)
	ledger := repository.NewStateLedger(store)
	ex := &stubExtractor{items: map[string]extractor.Item{
		videoA: {Title: "Night Drive 90 bpm", Artist: "Prod Nova"},
		videoB: {Title: "Untitled"},
	}}
	pipeline := ingest.NewPipeline(b, idx, ledger, ex, ingest.Options{
		WorkDir: t.TempDir(),
		Price:   29.99,
		License: model.LicenseBasic,
		Retry:   utils.RetryPolicy{Attempts: 1, Base: time.Millisecond},
	})
	engine, err := repair.NewEngine(b, origin, []string{"pub-1.r2.dev"})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d := Deps{
		Config:    cfg,
		Bucket:    b,
		Index:     idx,
		Rebuilder: catalog.NewRebuilder(b, idx, nil),
		Repairer:  engine,
		Pipeline:  pipeline,
		Ledger:    ledger,
		Scheduler: scheduler.New(store, pipeline, scheduler.Options{CollectionMax: 5}),
		Cache:     indexCache,
		Metrics:   m,
	}
	return &testServer{t: t, bucket: b, redis: mr, metrics: m, reg: reg, handler: NewRouter(d, reg)}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login() string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/admin/token", "", map[string]string{"password": password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp tokenResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(s.t, resp.Token)
	return resp.Token
}

func TestListTracksUsesCache(t *testing.T) {
	s := newTestServer(t)
	s.bucket.Seed(model.IndexKey, []byte(`["track_a","track_b","track_c"]`))

	rec := s.do(http.MethodGet, "/api/tracks?offset=1&limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page trackListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, []string{"track_b"}, page.Tracks)
	assert.Equal(t, 3, page.Total)
	assert.False(t, page.Cached)
	assert.True(t, s.redis.Exists(cache.DefaultIndexKey))

	rec = s.do(http.MethodGet, "/api/tracks", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.True(t, page.Cached)
	assert.Equal(t, []string{"track_a", "track_b", "track_c"}, page.Tracks)
}

func TestListTracksPastEndIsEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/tracks?offset=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tracks":[],"total":0,"offset":10,"limit":50,"cached":false}`, rec.Body.String())
}

func TestListTracksCorruptIndex(t *testing.T) {
	s := newTestServer(t)
	s.bucket.Seed(model.IndexKey, []byte(`{"nope":1}`))
	rec := s.do(http.MethodGet, "/api/tracks", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetTrack(t *testing.T) {
	s := newTestServer(t)
	s.bucket.Seed(model.MetadataKey("track_a"), []byte(`"{\"id\":\"track_a\",\"title\":\"A\"}"`))

	rec := s.do(http.MethodGet, "/api/tracks/track_a", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"track_a","title":"A"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/tracks/track_zz", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/tracks/not-a-track", "", nil).Code)
}

func TestTokenAndAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/admin/token", "", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/admin/scheduler", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/admin/scheduler", "garbage", nil).Code)

	token := s.login()
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/admin/scheduler", token, nil).Code)
}

func TestAdminRoutesUnavailableWithoutSecret(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.JWTSecret = "" })

	now := time.Now()
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: auth.AdminSubject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   auth.AdminSubject,
			Issuer:    auth.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte{})
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/api/admin/scheduler", forged, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/admin/index/rebuild", forged, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		s.do(http.MethodPost, "/api/admin/token", "", map[string]string{"password": password}).Code)
}

func TestRebuildEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := s.login()

	rec := s.do(http.MethodPost, "/api/admin/index/rebuild", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.bucket.Seed(model.AudioKey("track_b"), []byte("x"))
	s.bucket.Seed(model.AudioKey("track_a"), []byte("x"))
	rec = s.do(http.MethodPost, "/api/admin/index/rebuild", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `["track_a","track_b"]`, string(s.bucket.Get(model.IndexKey)))
	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.IndexTracks))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.RebuildsTotal.WithLabelValues("empty")))
}

func TestRepairEndpointDryRun(t *testing.T) {
	s := newTestServer(t)
	token := s.login()
	key := model.MetadataKey("track_a")
	s.bucket.Seed(key, []byte(`{"id":"track_a","audioUrl":"https://pub-1.r2.dev/tracks/track_a.mp3"}`))

	rec := s.do(http.MethodPost, "/api/admin/metadata/repair?dryRun=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum repair.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.Updated)
	assert.Empty(t, s.bucket.Puts())

	rec = s.do(http.MethodPost, "/api/admin/metadata/repair", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(s.bucket.Get(key)), origin+"/tracks/track_a.mp3")
}

func TestImportEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := s.login()

	rec := s.do(http.MethodPost, "/api/admin/import", token, map[string]string{"url": "https://youtu.be/" + videoA})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var track model.Track
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &track))
	assert.Equal(t, 90, track.BPM)
	assert.True(t, strings.HasPrefix(track.AudioURL, origin+"/tracks/"))
	assert.False(t, s.redis.Exists(cache.DefaultIndexKey))

	rec = s.do(http.MethodPost, "/api/admin/import", token, map[string]string{"url": "https://www.youtube.com/watch?v=" + videoA})
	assert.Equal(t, http.StatusConflict, rec.Code)
	var errBody errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, string(ingest.StageLedger), errBody.Stage)

	rec = s.do(http.MethodPost, "/api/admin/import", token, map[string]string{"url": "https://youtu.be/" + videoB})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodPost, "/api/admin/import", token, map[string]string{"url": "https://example.com/x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/admin/ledger", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = s.do(http.MethodDelete, "/api/admin/ledger", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())
}

func TestImportCollectionEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := s.login()

	rec := s.do(http.MethodPost, "/api/admin/import/collection", token, map[string]interface{}{"url": "https://www.youtube.com/@prodnova"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res ingest.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.ImportItemsTotal.WithLabelValues("imported")))

	rec = s.do(http.MethodPost, "/api/admin/import/collection", token, map[string]interface{}{"url": "x", "kind": "album"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.login()

	rec := s.do(http.MethodPost, "/api/admin/scheduler/activate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st model.SchedulerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Active)
	assert.NotNil(t, st.NextRunAt)

	rec = s.do(http.MethodPost, "/api/admin/scheduler/tick", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report scheduler.TickReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Ran)

	rec = s.do(http.MethodPost, "/api/admin/scheduler/sources", token, map[string]string{"locator": "https://www.youtube.com/playlist?list=PL1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var src model.SourceConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &src))
	assert.Equal(t, model.SourcePlaylist, src.Kind)
	assert.True(t, src.Active)

	rec = s.do(http.MethodPost, "/api/admin/scheduler/sources", token, map[string]string{"locator": "https://www.youtube.com/playlist?list=PL1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPatch, "/api/admin/scheduler/sources/"+src.ID, token, map[string]bool{"active": false})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodDelete, "/api/admin/scheduler/sources/"+src.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodDelete, "/api/admin/scheduler/sources/"+src.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/admin/scheduler/deactivate", token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Active)
	assert.Nil(t, st.NextRunAt)
}

func TestOpsRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","backend":"remote"}`, rec.Body.String())

	rec = s.do(http.MethodOptions, "/api/admin/import", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")))

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "beatvault_http_requests_total")
}
