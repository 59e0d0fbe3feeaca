package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"herald/internal/models"
	"herald/internal/store"
	"herald/internal/worker"
	"herald/pkg/logging"
)

// Runner executes one publishing invocation.
type Runner interface {
	RunOnce(ctx context.Context) (worker.Summary, error)
}

// PostGetter reads a single post for operator inspection.
type PostGetter interface {
	Get(ctx context.Context, id string) (*models.ScheduledPost, error)
}

// Handlers exposes the engine's HTTP surface.
type Handlers struct {
	runner Runner
	posts  PostGetter
	logger logging.Logger
}

// New creates the HTTP handlers.
func New(runner Runner, posts PostGetter, logger logging.Logger) *Handlers {
	return &Handlers{
		runner: runner,
		posts:  posts,
		logger: logger,
	}
}

// TriggerPublish runs one publishing invocation and returns its summary.
// This is the entry point the external trigger collaborator calls; the cron
// cadence invokes the identical code path.
func (h *Handlers) TriggerPublish(c *gin.Context) {
	summary, err := h.runner.RunOnce(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Publishing invocation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

type postStatusResponse struct {
	ID          string    `json:"id"`
	Platform    string    `json:"platform"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
	RetryCount  int       `json:"retry_count"`
	ExternalRef string    `json:"external_ref,omitempty"`
	PostURL     string    `json:"post_url,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetPost returns a post's current publishing state.
func (h *Handlers) GetPost(c *gin.Context) {
	id := c.Param("id")

	post, err := h.posts.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		h.logger.WithError(err).WithField("post_id", id).Error("Failed to load post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load post"})
		return
	}

	c.JSON(http.StatusOK, postStatusResponse{
		ID:          post.ID,
		Platform:    string(post.Platform),
		Status:      post.Status,
		ScheduledAt: post.ScheduledAt,
		RetryCount:  post.RetryCount,
		ExternalRef: post.ExternalRef.String,
		PostURL:     post.PostURL.String,
		LastError:   post.LastError.String,
		UpdatedAt:   post.UpdatedAt,
	})
}
