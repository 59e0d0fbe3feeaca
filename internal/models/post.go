package models

import (
	"database/sql"
	"time"
)

// Platform identifies a publishing destination
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
)

// Post statuses
const (
	StatusScheduled = "scheduled"
	StatusPosting   = "posting"
	StatusPosted    = "posted"
	StatusFailed    = "failed"
)

// ScheduledPost is the unit of work for the publishing engine. Rows are
// created by the scheduling frontend; only the publisher worker and the
// reconciler mutate status, retry_count, external_ref, post_url and
// last_error.
type ScheduledPost struct {
	ID             string
	Platform       Platform
	Content        string
	Media          [][]byte
	ScheduledAt    time.Time
	Status         string
	RetryCount     int
	ExternalRef    sql.NullString
	PostURL        sql.NullString
	LastError      sql.NullString
	DelegatedJobID sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PublishResult is the outcome of one publish attempt. It is never persisted
// directly; the worker folds it into the post's status fields.
type PublishResult struct {
	Success bool
	Message string
	PostID  string
	PostURL string
}

// Failure builds a failed PublishResult with the given message.
func Failure(message string) PublishResult {
	return PublishResult{Success: false, Message: message}
}
