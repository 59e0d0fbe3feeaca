package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"herald/internal/models"
	"herald/internal/publisher"
	"herald/internal/store"
	"herald/pkg/logging"
)

// PostStore is the scheduled-post store surface the publish worker needs.
type PostStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledPost, error)
	Claim(ctx context.Context, id string) error
	MarkPosted(ctx context.Context, id, externalRef, postURL string) error
	ReleaseForRetry(ctx context.Context, id string, retryCount int, lastError string) error
	MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error
}

// ItemResult is one post's outcome within an invocation summary.
type ItemResult struct {
	ID       string          `json:"id"`
	Platform models.Platform `json:"platform"`
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	PostURL  string          `json:"post_url,omitempty"`
}

// Summary reports what one invocation processed.
type Summary struct {
	ProcessedCount int          `json:"processed_count"`
	Results        []ItemResult `json:"results"`
}

// Metrics holds the publish worker's prometheus instruments.
type Metrics struct {
	PublishAttempts *prometheus.CounterVec   // labels: platform, outcome
	PublishDuration *prometheus.HistogramVec // labels: platform
}

// PublishWorker drives due posts through their platform adapters and applies
// the retry policy. It is stateless between invocations: all state lives in
// the store.
type PublishWorker struct {
	store      PostStore
	registry   publisher.Registry
	logger     logging.Logger
	metrics    *Metrics
	batchSize  int
	maxRetries int
	now        func() time.Time
}

// Option customizes the publish worker.
type Option func(*PublishWorker)

// WithBatchSize bounds how many due posts one invocation processes.
func WithBatchSize(n int) Option {
	return func(w *PublishWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithMaxRetries sets the retry budget before a post is terminally failed.
func WithMaxRetries(n int) Option {
	return func(w *PublishWorker) {
		if n > 0 {
			w.maxRetries = n
		}
	}
}

// WithMetrics attaches prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(w *PublishWorker) {
		w.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *PublishWorker) {
		w.now = now
	}
}

// NewPublishWorker creates a publish worker.
func NewPublishWorker(s PostStore, registry publisher.Registry, logger logging.Logger, opts ...Option) *PublishWorker {
	w := &PublishWorker{
		store:      s,
		registry:   registry,
		logger:     logger,
		batchSize:  10,
		maxRetries: 3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce executes one invocation: select due posts, claim and publish each
// sequentially, and fold outcomes back into the store. A store failure at
// selection fails the whole invocation; a single post's failure never does.
func (w *PublishWorker) RunOnce(ctx context.Context) (Summary, error) {
	posts, err := w.store.ListDue(ctx, w.now(), w.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list due posts: %w", err)
	}

	summary := Summary{Results: make([]ItemResult, 0, len(posts))}
	if len(posts) == 0 {
		w.logger.Debug("No posts due")
		return summary, nil
	}

	w.logger.WithField("count", len(posts)).Info("Processing due posts")

	for _, post := range posts {
		result, processed := w.processPost(ctx, post)
		if !processed {
			continue
		}
		summary.ProcessedCount++
		summary.Results = append(summary.Results, result)
	}

	return summary, nil
}

// processPost claims and publishes one post. The second return value is false
// when the post was skipped because another invocation claimed it first.
func (w *PublishWorker) processPost(ctx context.Context, post models.ScheduledPost) (ItemResult, bool) {
	log := w.logger.WithFields(logging.Fields{
		"post_id":  post.ID,
		"platform": post.Platform,
	})

	if err := w.store.Claim(ctx, post.ID); err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			log.Debug("Post already claimed by another invocation, skipping")
			return ItemResult{}, false
		}
		log.WithError(err).Error("Failed to claim post")
		return ItemResult{}, false
	}

	start := w.now()
	result := w.publish(ctx, post)
	if w.metrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		w.metrics.PublishAttempts.WithLabelValues(string(post.Platform), outcome).Inc()
		w.metrics.PublishDuration.WithLabelValues(string(post.Platform)).Observe(w.now().Sub(start).Seconds())
	}

	if result.Success {
		if err := w.store.MarkPosted(ctx, post.ID, result.PostID, result.PostURL); err != nil {
			log.WithError(err).Error("Failed to record posted status")
		}
		log.WithField("post_url", result.PostURL).Info("Post published")
	} else {
		nextRetry := post.RetryCount + 1
		if nextRetry < w.maxRetries {
			if err := w.store.ReleaseForRetry(ctx, post.ID, nextRetry, result.Message); err != nil {
				log.WithError(err).Error("Failed to release post for retry")
			}
			log.WithFields(logging.Fields{
				"retry_count": nextRetry,
				"error":       result.Message,
			}).Warn("Publish attempt failed, will retry")
		} else {
			if err := w.store.MarkFailed(ctx, post.ID, nextRetry, result.Message); err != nil {
				log.WithError(err).Error("Failed to record failed status")
			}
			log.WithFields(logging.Fields{
				"retry_count": nextRetry,
				"error":       result.Message,
			}).Error("Publish attempts exhausted, post failed")
		}
	}

	return ItemResult{
		ID:       post.ID,
		Platform: post.Platform,
		Success:  result.Success,
		Message:  result.Message,
		PostURL:  result.PostURL,
	}, true
}

// publish dispatches to the platform adapter. Adapters convert their own
// failures to results; a panicking adapter is treated the same as an explicit
// failure so one post cannot take down the batch.
func (w *PublishWorker) publish(ctx context.Context, post models.ScheduledPost) (result models.PublishResult) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.WithFields(logging.Fields{
				"post_id":  post.ID,
				"platform": post.Platform,
				"panic":    r,
			}).Error("Adapter panic during publish")
			result = models.Failure(fmt.Sprintf("unexpected adapter fault: %v", r))
		}
	}()

	adapter, ok := w.registry.Resolve(post.Platform)
	if !ok {
		return models.Failure(fmt.Sprintf("no adapter registered for platform %q", post.Platform))
	}

	return adapter.Publish(ctx, post.Content, post.Media)
}
