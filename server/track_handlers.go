package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"beatvault/catalog"
	"beatvault/logger"
	"beatvault/model"
	"beatvault/repair"
	"beatvault/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type trackListResponse struct {
	Tracks []string `json:"tracks"`
	Total  int      `json:"total"`
	Offset int      `json:"offset"`
	Limit  int      `json:"limit"`
	Cached bool     `json:"cached"`
}

// GetTracksHandler 返回公开的曲目ID列表，支持 offset/limit 分页
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ids []string
	cached := false
	if h.cache != nil {
		ids, cached = h.cache.Get(ctx)
	}
	if !cached {
		snap, err := h.index.Read(ctx)
		if err != nil {
			if errors.Is(err, catalog.ErrCorruptIndex) {
				logger.Error("track index is corrupt", logger.ErrorField(err))
				writeError(w, http.StatusServiceUnavailable, "Track index is unavailable")
				return
			}
			logger.Error("failed to read track index", logger.ErrorField(err))
			writeError(w, http.StatusBadGateway, "Failed to read track index")
			return
		}
		ids = snap.IDs
		if h.cache != nil {
			if err := h.cache.Set(ctx, ids); err != nil {
				logger.Warn("failed to cache track index", logger.ErrorField(err))
			}
		}
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	page := []string{}
	if offset < len(ids) {
		end := min(offset+limit, len(ids))
		page = ids[offset:end]
	}

	writeJSON(w, http.StatusOK, trackListResponse{
		Tracks: page,
		Total:  len(ids),
		Offset: offset,
		Limit:  limit,
		Cached: cached,
	})
}

// GetTrackHandler 返回单个曲目的元数据
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !model.IsTrackID(id) {
		writeError(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	doc, err := repair.LoadMetadata(r.Context(), h.bucket, id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, doc)
	case storage.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Track not found")
	case errors.Is(err, repair.ErrNotAnObject):
		logger.Warn("track metadata is malformed", logger.TrackID(id), logger.ErrorField(err))
		writeError(w, http.StatusUnprocessableEntity, "Track metadata is malformed")
	default:
		logger.Error("failed to load track metadata", logger.TrackID(id), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "Failed to load track metadata")
	}
}
