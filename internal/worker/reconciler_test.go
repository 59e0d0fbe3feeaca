package worker

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"herald/internal/models"
	"herald/internal/scheduler"
	"herald/pkg/logging"
)

type fakeDelegatedStore struct {
	delegated []models.ScheduledPost

	postedID  string
	postedRef string
	postedURL string

	failedID    string
	failedCount int
	failedError string
}

func (f *fakeDelegatedStore) ListDelegated(ctx context.Context, limit int) ([]models.ScheduledPost, error) {
	return f.delegated, nil
}

func (f *fakeDelegatedStore) MarkPosted(ctx context.Context, id, externalRef, postURL string) error {
	f.postedID = id
	f.postedRef = externalRef
	f.postedURL = postURL
	return nil
}

func (f *fakeDelegatedStore) MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error {
	f.failedID = id
	f.failedCount = retryCount
	f.failedError = lastError
	return nil
}

type fakeStatusSource struct {
	statuses map[string]*scheduler.JobStatus
}

func (f *fakeStatusSource) GetStatus(ctx context.Context, jobID string) (*scheduler.JobStatus, error) {
	status, ok := f.statuses[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	return status, nil
}

func delegatedPost(id, jobID string, platform models.Platform) models.ScheduledPost {
	return models.ScheduledPost{
		ID:             id,
		Platform:       platform,
		Status:         models.StatusPosting,
		ScheduledAt:    time.Now().Add(-time.Hour),
		DelegatedJobID: sql.NullString{String: jobID, Valid: true},
	}
}

func TestReconcileRecordsCompletedJob(t *testing.T) {
	st := &fakeDelegatedStore{
		delegated: []models.ScheduledPost{delegatedPost("p1", "job-1", models.PlatformTwitter)},
	}
	source := &fakeStatusSource{statuses: map[string]*scheduler.JobStatus{
		"job-1": {
			Status: scheduler.JobStatusCompleted,
			Results: []scheduler.PlatformResult{
				{Platform: "twitter", Status: "completed", ExternalRef: "123", PostURL: "https://twitter.com/i/web/status/123"},
				{Platform: "linkedin", Status: "completed", ExternalRef: "other"},
			},
		},
	}}

	r := NewReconciler(st, source, logging.NewLogger(), time.Minute)
	r.reconcile(context.Background())

	require.Equal(t, "p1", st.postedID)
	require.Equal(t, "123", st.postedRef)
	require.Equal(t, "https://twitter.com/i/web/status/123", st.postedURL)
	require.Empty(t, st.failedID)
}

func TestReconcileFallsBackToJobIDWhenResultMissing(t *testing.T) {
	st := &fakeDelegatedStore{
		delegated: []models.ScheduledPost{delegatedPost("p1", "job-1", models.PlatformInstagram)},
	}
	source := &fakeStatusSource{statuses: map[string]*scheduler.JobStatus{
		"job-1": {Status: scheduler.JobStatusCompleted},
	}}

	r := NewReconciler(st, source, logging.NewLogger(), time.Minute)
	r.reconcile(context.Background())

	require.Equal(t, "p1", st.postedID)
	require.Equal(t, "job-1", st.postedRef)
	require.Empty(t, st.postedURL)
}

func TestReconcileRecordsFailedJob(t *testing.T) {
	st := &fakeDelegatedStore{
		delegated: []models.ScheduledPost{delegatedPost("p1", "job-1", models.PlatformLinkedIn)},
	}
	source := &fakeStatusSource{statuses: map[string]*scheduler.JobStatus{
		"job-1": {
			Status: scheduler.JobStatusFailed,
			Results: []scheduler.PlatformResult{
				{Platform: "linkedin", Status: "failed", Message: "token expired"},
			},
		},
	}}

	r := NewReconciler(st, source, logging.NewLogger(), time.Minute)
	r.reconcile(context.Background())

	require.Equal(t, "p1", st.failedID)
	require.Equal(t, 3, st.failedCount)
	require.Equal(t, "token expired", st.failedError)
	require.Empty(t, st.postedID)
}

func TestReconcileLeavesPendingJobsAlone(t *testing.T) {
	st := &fakeDelegatedStore{
		delegated: []models.ScheduledPost{delegatedPost("p1", "job-1", models.PlatformTwitter)},
	}
	source := &fakeStatusSource{statuses: map[string]*scheduler.JobStatus{
		"job-1": {Status: scheduler.JobStatusPending},
	}}

	r := NewReconciler(st, source, logging.NewLogger(), time.Minute)
	r.reconcile(context.Background())

	require.Empty(t, st.postedID)
	require.Empty(t, st.failedID)
}

func TestReconcileToleratesStatusFetchErrors(t *testing.T) {
	st := &fakeDelegatedStore{
		delegated: []models.ScheduledPost{
			delegatedPost("p1", "job-missing", models.PlatformTwitter),
			delegatedPost("p2", "job-2", models.PlatformTwitter),
		},
	}
	source := &fakeStatusSource{statuses: map[string]*scheduler.JobStatus{
		"job-2": {Status: scheduler.JobStatusCompleted},
	}}

	r := NewReconciler(st, source, logging.NewLogger(), time.Minute)
	r.reconcile(context.Background())

	require.Equal(t, "p2", st.postedID)
}
