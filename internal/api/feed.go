package api

import (
	"net/http"
	"strconv"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ListLogs returns generation logs filtered by robot_id, type and limit.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := domain.LogFilter{
		RobotID: q.Get("robot_id"),
		Type:    domain.LogType(q.Get("type")),
		Limit:   limit,
	}

	logs, err := h.repo.ListLogs(r.Context(), filter)
	if err != nil {
		logger(r).Error("Failed to list logs", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	if logs == nil {
		logs = []*domain.GenerationLog{}
	}
	JSON(w, http.StatusOK, logs)
}

// ListPosts returns published posts, newest first.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	posts, err := h.repo.ListPublishedPosts(r.Context(), h.now(), limit)
	if err != nil {
		logger(r).Error("Failed to list posts", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	if posts == nil {
		posts = []*domain.Post{}
	}
	JSON(w, http.StatusOK, posts)
}

// ListComments returns the published comments of a post.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	post, err := h.repo.GetPost(r.Context(), postID)
	if err != nil {
		logger(r).Error("Failed to get post", "post_id", postID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get post")
		return
	}
	if post == nil || post.PublishAt.After(h.now()) {
		Error(w, http.StatusNotFound, "post not found")
		return
	}

	comments, err := h.repo.ListPostComments(r.Context(), postID, h.now())
	if err != nil {
		logger(r).Error("Failed to list comments", "post_id", postID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list comments")
		return
	}
	if comments == nil {
		comments = []*domain.Comment{}
	}
	JSON(w, http.StatusOK, comments)
}
