package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"beatvault/catalog"
	"beatvault/config"
	"beatvault/core/auth"
	"beatvault/ingest"
	"beatvault/logger"
	"beatvault/metrics"
	"beatvault/repair"
	"beatvault/repository"
	"beatvault/scheduler"
	"beatvault/storage"
)

// TrackListCache caches the public track id list. *cache.IndexCache satisfies it.
type TrackListCache interface {
	Get(ctx context.Context) ([]string, bool)
	Set(ctx context.Context, ids []string) error
}

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg       *config.Config
	bucket    storage.Bucket
	index     *catalog.Index
	rebuilder *catalog.Rebuilder
	repairer  *repair.Engine
	pipeline  *ingest.Pipeline
	ledger    repository.ImportLedger
	scheduler *scheduler.Scheduler
	cache     TrackListCache
	metrics   *metrics.Metrics
}

// Deps are the explicitly constructed collaborators the API serves.
type Deps struct {
	Config    *config.Config
	Bucket    storage.Bucket
	Index     *catalog.Index
	Rebuilder *catalog.Rebuilder
	Repairer  *repair.Engine
	Pipeline  *ingest.Pipeline
	Ledger    repository.ImportLedger
	Scheduler *scheduler.Scheduler
	Cache     TrackListCache // optional
	Metrics   *metrics.Metrics
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(d Deps) *APIHandler {
	if d.Metrics == nil {
		d.Metrics = metrics.New(prometheus.NewRegistry())
	}
	return &APIHandler{
		cfg:       d.Config,
		bucket:    d.Bucket,
		index:     d.Index,
		rebuilder: d.Rebuilder,
		repairer:  d.Repairer,
		pipeline:  d.Pipeline,
		ledger:    d.Ledger,
		scheduler: d.Scheduler,
		cache:     d.Cache,
		metrics:   d.Metrics,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody decodes an optional JSON body into v. An empty body is fine.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

type ctxKey string

const claimsKey ctxKey = "claims"

// AuthMiddleware requires a valid admin bearer token.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.JWTSecret == "" {
			writeError(w, http.StatusServiceUnavailable, "Admin login is not configured")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := auth.ParseToken([]byte(h.cfg.JWTSecret), parts[1])
		if err != nil {
			logger.Warn("[Auth] rejected token", logger.ErrorField(err))
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests by route template and logs slow ones.
func (h *APIHandler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		if took := time.Since(start); took > 5*time.Second {
			logger.Info("slow request",
				logger.String("method", r.Method),
				logger.String("route", route),
				logger.Int("status", rec.status),
				logger.Duration("took", took))
		}
	})
}

// HealthHandler reports liveness and the resolved state backend.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"backend": h.cfg.StateBackend,
	})
}
