package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/planner"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/go-chi/chi/v5"
)

func parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := chi.URLParam(r, "date")
	date, err := time.ParseInLocation(domain.DateLayout, raw, time.Local)
	if err != nil {
		Error(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

// ListPlans returns a robot's recent plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	plans, err := h.repo.ListPlans(r.Context(), robotID, limit)
	if err != nil {
		logger(r).Error("Failed to list plans", "robot_id", robotID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list plans")
		return
	}
	if plans == nil {
		plans = []*domain.DailyPlan{}
	}
	JSON(w, http.StatusOK, plans)
}

// GetPlan returns the plan for a robot and date without generating it.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	date, ok := parseDate(w, r)
	if !ok {
		return
	}

	plan, err := h.repo.GetPlan(r.Context(), robotID, domain.PlanDate(date))
	if err != nil {
		logger(r).Error("Failed to get plan", "robot_id", robotID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get plan")
		return
	}
	if plan == nil {
		Error(w, http.StatusNotFound, "plan not found")
		return
	}
	JSON(w, http.StatusOK, plan)
}

// EnsurePlan generates the plan if absent or FAILED.
func (h *Handler) EnsurePlan(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	date, ok := parseDate(w, r)
	if !ok {
		return
	}

	plan, err := h.plans.EnsurePlan(r.Context(), robotID, date)
	if errors.Is(err, planner.ErrRobotNotFound) {
		Error(w, http.StatusNotFound, "robot not found")
		return
	}
	if errors.Is(err, store.ErrPlanConflict) {
		Error(w, http.StatusConflict, "plan changed concurrently, retry")
		return
	}
	if err == nil && plan == nil {
		err = errors.New("planner returned no plan")
	}
	if err != nil {
		logger(r).Error("Failed to ensure plan", "robot_id", robotID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to ensure plan")
		return
	}

	status := http.StatusOK
	if plan.Status == domain.PlanPending {
		status = http.StatusAccepted
	}
	JSON(w, status, plan)
}

// DeletePlan soft-deletes a plan so the next ensure regenerates it.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	robotID := chi.URLParam(r, "robotID")
	date, ok := parseDate(w, r)
	if !ok {
		return
	}

	deleted, err := h.repo.SoftDeletePlan(r.Context(), robotID, domain.PlanDate(date))
	if err != nil {
		logger(r).Error("Failed to delete plan", "robot_id", robotID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete plan")
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "plan not found")
		return
	}
	logger(r).Info("Plan soft-deleted", "robot_id", robotID, "plan_date", domain.PlanDate(date))
	w.WriteHeader(http.StatusNoContent)
}

// EnsureAll ensures plans for every active robot.
func (h *Handler) EnsureAll(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(w, r)
	if !ok {
		return
	}

	sum, err := h.plans.EnsureAll(r.Context(), date)
	if err != nil {
		logger(r).Error("Failed to ensure plans", "error", err)
		Error(w, http.StatusInternalServerError, "failed to ensure plans")
		return
	}
	JSON(w, http.StatusOK, sum)
}
