package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/robofeed/internal/scheduler"
	"github.com/ashureev/robofeed/internal/worldctx"
)

// Tick runs one scheduler tick synchronously.
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	res, err := h.ticker.Tick(r.Context())
	if errors.Is(err, scheduler.ErrTickRunning) {
		Error(w, http.StatusConflict, "tick_in_progress")
		return
	}
	if err != nil {
		logger(r).Error("Manual tick failed", "error", err)
		Error(w, http.StatusInternalServerError, "tick failed")
		return
	}
	JSON(w, http.StatusOK, res)
}

// Stats returns the scheduler's daily counters.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.ticker.Stats().Snapshot())
}

// GetWorldData returns the cached external data.
func (h *Handler) GetWorldData(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.world.Data())
}

// PutWorldData replaces the cached external data wholesale.
func (h *Handler) PutWorldData(w http.ResponseWriter, r *http.Request) {
	var data worldctx.ExternalData
	if !decodeJSON(w, r, &data) {
		return
	}
	if err := h.world.Replace(data); err != nil {
		logger(r).Error("Failed to replace world data", "error", err)
		Error(w, http.StatusInternalServerError, "failed to save world data")
		return
	}
	logger(r).Info("World data replaced", "news", len(data.News), "hot_searches", len(data.HotSearches))
	JSON(w, http.StatusOK, h.world.Data())
}
