// Package api provides HTTP handlers for the robot feed admin API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/ashureev/robofeed/internal/planner"
	"github.com/ashureev/robofeed/internal/scheduler"
	"github.com/ashureev/robofeed/internal/store"
	"github.com/ashureev/robofeed/internal/worldctx"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Plans ensures daily plans.
type Plans interface {
	EnsurePlan(ctx context.Context, robotID string, date time.Time) (*domain.DailyPlan, error)
	EnsureAll(ctx context.Context, date time.Time) (planner.Summary, error)
}

// Ticker runs scheduler ticks on demand.
type Ticker interface {
	Tick(ctx context.Context) (scheduler.TickResult, error)
	Stats() *scheduler.Stats
}

// WorldData reads and replaces the external data cache.
type WorldData interface {
	Data() worldctx.ExternalData
	Replace(data worldctx.ExternalData) error
}

// Subscribers reports connected feed clients.
type Subscribers interface {
	Count() int
}

// Handler serves the admin and inspection routes.
type Handler struct {
	repo        store.Repository
	plans       Plans
	ticker      Ticker
	world       WorldData
	subscribers Subscribers
	now         func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, plans Plans, ticker Ticker, world WorldData, subscribers Subscribers) *Handler {
	return &Handler{
		repo:        repo,
		plans:       plans,
		ticker:      ticker,
		world:       world,
		subscribers: subscribers,
		now:         time.Now,
	}
}

// RegisterRoutes registers all /api routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/robots", h.ListRobots)
		r.Get("/robots/{robotID}", h.GetRobot)
		r.Put("/robots/{robotID}", h.PutRobot)

		r.Get("/robots/{robotID}/plans", h.ListPlans)
		r.Get("/robots/{robotID}/plans/{date}", h.GetPlan)
		r.Post("/robots/{robotID}/plans/{date}", h.EnsurePlan)
		r.Delete("/robots/{robotID}/plans/{date}", h.DeletePlan)
		r.Post("/plans/{date}/ensure-all", h.EnsureAll)

		r.Get("/logs", h.ListLogs)
		r.Get("/posts", h.ListPosts)
		r.Get("/posts/{postID}/comments", h.ListComments)

		r.Post("/scheduler/tick", h.Tick)
		r.Get("/scheduler/stats", h.Stats)

		r.Get("/world/data", h.GetWorldData)
		r.Put("/world/data", h.PutWorldData)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// logger returns the default logger tagged with the request ID.
func logger(r *http.Request) *slog.Logger {
	return slog.Default().With("request_id", chiMiddleware.GetReqID(r.Context()))
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// Health returns the health status of the API and its dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok", "database": "ok"}
	status := map[string]any{"status": "healthy", "checks": checks}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		logger(r).Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	}
	if h.subscribers != nil {
		status["subscribers"] = h.subscribers.Count()
	}

	JSON(w, statusCode, status)
}
