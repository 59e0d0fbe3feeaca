package worker

import (
	"context"
	"time"

	"herald/internal/models"
	"herald/internal/scheduler"
	"herald/pkg/logging"
)

// DelegatedStore is the store surface the reconciler needs.
type DelegatedStore interface {
	ListDelegated(ctx context.Context, limit int) ([]models.ScheduledPost, error)
	MarkPosted(ctx context.Context, id, externalRef, postURL string) error
	MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error
}

// StatusSource reports delegated job outcomes.
type StatusSource interface {
	GetStatus(ctx context.Context, jobID string) (*scheduler.JobStatus, error)
}

// Reconciler folds the external scheduling service's view of delegated jobs
// back into local records. It only reads remote state; the service itself
// executes those publishes.
type Reconciler struct {
	store      DelegatedStore
	source     StatusSource
	logger     logging.Logger
	interval   time.Duration
	batchSize  int
	maxRetries int
	stopCh     chan struct{}
}

// NewReconciler creates a status reconciler.
func NewReconciler(s DelegatedStore, source StatusSource, logger logging.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		store:      s,
		source:     source,
		logger:     logger,
		interval:   interval,
		batchSize:  50,
		maxRetries: 3,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("Starting delegated-status reconciler")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopping due to context cancellation")
			return
		case <-r.stopCh:
			r.logger.Info("Reconciler stopping")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) reconcile(ctx context.Context) {
	posts, err := r.store.ListDelegated(ctx, r.batchSize)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list delegated posts")
		return
	}
	if len(posts) == 0 {
		return
	}

	r.logger.WithField("count", len(posts)).Debug("Reconciling delegated posts")

	for _, post := range posts {
		r.reconcilePost(ctx, post)
	}
}

func (r *Reconciler) reconcilePost(ctx context.Context, post models.ScheduledPost) {
	jobID := post.DelegatedJobID.String
	log := r.logger.WithFields(logging.Fields{
		"post_id":  post.ID,
		"platform": post.Platform,
		"job_id":   jobID,
	})

	status, err := r.source.GetStatus(ctx, jobID)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch delegated job status")
		return
	}

	switch status.Status {
	case scheduler.JobStatusCompleted:
		externalRef, postURL := pickPlatformResult(status.Results, post.Platform)
		if externalRef == "" {
			externalRef = jobID
		}
		if err := r.store.MarkPosted(ctx, post.ID, externalRef, postURL); err != nil {
			log.WithError(err).Error("Failed to record delegated success")
			return
		}
		log.Info("Delegated post completed remotely")
	case scheduler.JobStatusFailed:
		message := failureMessage(status.Results, post.Platform)
		if err := r.store.MarkFailed(ctx, post.ID, r.maxRetries, message); err != nil {
			log.WithError(err).Error("Failed to record delegated failure")
			return
		}
		log.WithField("error", message).Warn("Delegated post failed remotely")
	default:
		// Still pending remotely; leave the local record alone.
	}
}

func pickPlatformResult(results []scheduler.PlatformResult, platform models.Platform) (externalRef, postURL string) {
	for _, res := range results {
		if res.Platform == string(platform) {
			return res.ExternalRef, res.PostURL
		}
	}
	return "", ""
}

func failureMessage(results []scheduler.PlatformResult, platform models.Platform) string {
	for _, res := range results {
		if res.Platform == string(platform) && res.Message != "" {
			return res.Message
		}
	}
	return "delegated scheduler reported failure"
}
