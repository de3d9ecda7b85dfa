package api

import (
	"net/http"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ListRobots returns every robot profile.
func (h *Handler) ListRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := h.repo.ListRobots(r.Context())
	if err != nil {
		logger(r).Error("Failed to list robots", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list robots")
		return
	}
	if robots == nil {
		robots = []*domain.RobotProfile{}
	}
	JSON(w, http.StatusOK, robots)
}

// GetRobot returns one robot profile.
func (h *Handler) GetRobot(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	robot, err := h.repo.GetRobot(r.Context(), robotID)
	if err != nil {
		logger(r).Error("Failed to get robot", "robot_id", robotID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get robot")
		return
	}
	if robot == nil {
		Error(w, http.StatusNotFound, "robot not found")
		return
	}
	JSON(w, http.StatusOK, robot)
}

// PutRobot creates or replaces a robot profile. The path ID wins over the body.
func (h *Handler) PutRobot(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")

	var robot domain.RobotProfile
	if !decodeJSON(w, r, &robot) {
		return
	}
	robot.RobotID = robotID
	if err := robot.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.UpsertRobot(r.Context(), &robot); err != nil {
		logger(r).Error("Failed to upsert robot", "robot_id", robotID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save robot")
		return
	}
	logger(r).Info("Robot saved", "robot_id", robotID, "active", robot.IsActive)

	saved, err := h.repo.GetRobot(r.Context(), robotID)
	if err != nil || saved == nil {
		JSON(w, http.StatusOK, robot)
		return
	}
	JSON(w, http.StatusOK, saved)
}
