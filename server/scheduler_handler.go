package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"beatvault/logger"
	"beatvault/model"
	"beatvault/scheduler"
)

func (h *APIHandler) schedulerState(w http.ResponseWriter, st model.SchedulerState, err error) {
	if err != nil {
		logger.Error("scheduler state update failed", logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "Failed to update scheduler state")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SchedulerStatusHandler returns the persisted scheduler state.
func (h *APIHandler) SchedulerStatusHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.scheduler.Status(r.Context())
	h.schedulerState(w, st, err)
}

// SchedulerActivateHandler arms the scheduler.
func (h *APIHandler) SchedulerActivateHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.scheduler.Activate(r.Context())
	h.schedulerState(w, st, err)
}

// SchedulerDeactivateHandler disarms the scheduler.
func (h *APIHandler) SchedulerDeactivateHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.scheduler.Deactivate(r.Context())
	h.schedulerState(w, st, err)
}

// SchedulerTickHandler runs one tick bounded by the configured tick timeout.
func (h *APIHandler) SchedulerTickHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.TickTimeout)
	defer cancel()

	start := time.Now()
	report, err := h.scheduler.Tick(ctx)
	h.metrics.ObserveTick(report, time.Since(start), err)
	if err != nil {
		logger.Error("scheduler tick failed", logger.ErrorField(err))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type sourceRequest struct {
	Locator string `json:"locator"`
	Kind    string `json:"kind"`
	Active  *bool  `json:"active"`
}

// AddSourceHandler registers a recurring source.
func (h *APIHandler) AddSourceHandler(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeBody(w, r, &req); err != nil || req.Locator == "" {
		writeError(w, http.StatusBadRequest, "A locator is required")
		return
	}
	switch req.Kind {
	case "", model.SourceChannel, model.SourcePlaylist:
	default:
		writeError(w, http.StatusBadRequest, "kind must be channel or playlist")
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	src, err := h.scheduler.AddSource(r.Context(), model.SourceConfig{Locator: req.Locator, Kind: req.Kind, Active: active})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, src)
	case errors.Is(err, scheduler.ErrSourceExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("failed to add source", logger.String("locator", req.Locator), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "Failed to add source")
	}
}

// SourceHandler removes (DELETE) or toggles (PATCH) a source.
func (h *APIHandler) SourceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	var err error
	switch r.Method {
	case http.MethodDelete:
		err = h.scheduler.RemoveSource(ctx, id)
	case http.MethodPatch:
		var req sourceRequest
		if derr := decodeBody(w, r, &req); derr != nil || req.Active == nil {
			writeError(w, http.StatusBadRequest, "active is required")
			return
		}
		err = h.scheduler.SetSourceActive(ctx, id, *req.Active)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, scheduler.ErrSourceNotFound):
		writeError(w, http.StatusNotFound, "Source not found")
	default:
		logger.Error("failed to update source", logger.String("sourceId", id), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, "Failed to update source")
	}
}
