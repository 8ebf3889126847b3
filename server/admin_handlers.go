package server

import (
	"errors"
	"net/http"

	"beatvault/catalog"
	"beatvault/ingest"
	"beatvault/logger"
	"beatvault/model"
)

// RebuildIndexHandler regenerates tracks/list.json from the audio listing.
func (h *APIHandler) RebuildIndexHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.rebuilder.RebuildIndex(r.Context())
	h.metrics.ObserveRebuild(report, err)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, catalog.ErrEmptyListing) {
			status = http.StatusConflict
		}
		logger.Error("index rebuild failed", logger.ErrorField(err))
		writeJSON(w, status, map[string]interface{}{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RepairMetadataHandler rewrites stale CDN URLs. ?dryRun=true reports only.
func (h *APIHandler) RepairMetadataHandler(w http.ResponseWriter, r *http.Request) {
	if h.repairer == nil {
		writeError(w, http.StatusServiceUnavailable, "CDN origin is not configured")
		return
	}
	engine := h.repairer
	dryRun := r.URL.Query().Get("dryRun") == "true"
	if dryRun {
		engine = engine.Preview()
	}

	sum, err := engine.RepairAllMetadata(r.Context())
	if !dryRun {
		h.metrics.ObserveRepair(sum)
	}
	if err != nil {
		logger.Error("metadata repair aborted", logger.ErrorField(err))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error(), "summary": sum})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type importRequest struct {
	URL string `json:"url"`
}

// ImportHandler imports a single video.
func (h *APIHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeBody(w, r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "A url is required")
		return
	}

	track, err := h.pipeline.ImportOne(r.Context(), req.URL, ingest.Collection{})
	if err != nil {
		h.metrics.ObserveBatch(ingest.BatchResult{Failed: 1})
		status := importStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("import failed", logger.String("url", req.URL), logger.ErrorField(err))
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), Stage: string(ingest.StageOf(err))})
		return
	}
	h.metrics.ObserveBatch(ingest.BatchResult{Imported: 1})
	writeJSON(w, http.StatusCreated, track)
}

func importStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ingest.ErrNotMusic):
		return http.StatusUnprocessableEntity
	case ingest.StageOf(err) == ingest.StageLocator:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

type collectionRequest struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
	Max  int    `json:"max"`
}

// ImportCollectionHandler imports the newest items of a channel or playlist.
func (h *APIHandler) ImportCollectionHandler(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeBody(w, r, &req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "A url is required")
		return
	}
	switch req.Kind {
	case "":
		req.Kind = model.SourceChannel
	case model.SourceChannel, model.SourcePlaylist:
	default:
		writeError(w, http.StatusBadRequest, "kind must be channel or playlist")
		return
	}
	if req.Max <= 0 {
		req.Max = h.cfg.CollectionMax
	}

	res, err := h.pipeline.ImportFromCollection(r.Context(), ingest.Collection{Locator: req.URL, Kind: req.Kind}, req.Max)
	h.metrics.ObserveBatch(res)
	if err != nil {
		logger.Error("collection import failed", logger.String("url", req.URL), logger.ErrorField(err))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LedgerHandler lists (GET) or clears (DELETE) the import ledger.
func (h *APIHandler) LedgerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		recs, err := h.ledger.List(ctx)
		if err != nil {
			logger.Error("failed to list ledger", logger.ErrorField(err))
			writeError(w, http.StatusBadGateway, "Failed to read import ledger")
			return
		}
		if recs == nil {
			recs = []*model.ImportRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"records": recs, "total": len(recs)})
	case http.MethodDelete:
		n, err := h.ledger.Reset(ctx)
		if err != nil {
			logger.Error("failed to reset ledger", logger.ErrorField(err))
			writeError(w, http.StatusBadGateway, "Failed to reset import ledger")
			return
		}
		logger.Warn("import ledger reset", logger.Int("removed", n))
		writeJSON(w, http.StatusOK, map[string]int{"removed": n})
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
