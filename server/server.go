package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"beatvault/logger"
	"beatvault/metrics"
)

// NewRouter wires every route onto a gorilla/mux router.
func NewRouter(d Deps, reg *prometheus.Registry) http.Handler {
	h := NewAPIHandler(d)

	router := mux.NewRouter()
	router.Use(h.metricsMiddleware)

	// Public catalog
	router.HandleFunc("/api/tracks", h.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", h.GetTrackHandler).Methods(http.MethodGet)

	// 管理员登录
	router.HandleFunc("/api/admin/token", h.TokenHandler).Methods(http.MethodPost)

	// Catalog maintenance
	router.HandleFunc("/api/admin/index/rebuild", h.AuthMiddleware(h.RebuildIndexHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/metadata/repair", h.AuthMiddleware(h.RepairMetadataHandler)).Methods(http.MethodPost)

	// Ingestion
	router.HandleFunc("/api/admin/import", h.AuthMiddleware(h.ImportHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/import/collection", h.AuthMiddleware(h.ImportCollectionHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/ledger", h.AuthMiddleware(h.LedgerHandler)).Methods(http.MethodGet, http.MethodDelete)

	// Scheduler
	router.HandleFunc("/api/admin/scheduler", h.AuthMiddleware(h.SchedulerStatusHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/scheduler/activate", h.AuthMiddleware(h.SchedulerActivateHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/scheduler/deactivate", h.AuthMiddleware(h.SchedulerDeactivateHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/scheduler/tick", h.AuthMiddleware(h.SchedulerTickHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/scheduler/sources", h.AuthMiddleware(h.AddSourceHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/admin/scheduler/sources/{id}", h.AuthMiddleware(h.SourceHandler)).Methods(http.MethodDelete, http.MethodPatch)

	// Ops
	router.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)
	if reg != nil {
		router.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)
	}

	// CORS wraps the router so preflight requests bypass method matching.
	return corsMiddleware(router)
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, d Deps, reg *prometheus.Registry) error {
	// 设置服务器超时; a manual tick may run for the whole tick timeout.
	server := &http.Server{
		Addr:         d.Config.ListenAddr,
		Handler:      NewRouter(d, reg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: d.Config.TickTimeout + time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server exited")
	return nil
}
