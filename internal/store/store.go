package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"herald/internal/models"
)

var (
	// ErrNotFound is returned when a post does not exist.
	ErrNotFound = errors.New("post not found")

	// ErrAlreadyClaimed is returned when a conditional claim finds the post
	// no longer in the scheduled state. Another invocation got there first;
	// callers skip the item.
	ErrAlreadyClaimed = errors.New("post already claimed")
)

// Store is the scheduled-post store backed by postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a scheduled-post store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListDue returns posts whose scheduled time has elapsed and whose status is
// still scheduled, earliest first, bounded to limit. Media bytes are loaded
// alongside each post in display order.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, content, scheduled_at, status, retry_count,
		       external_ref, post_url, last_error, delegated_job_id,
		       created_at, updated_at
		FROM herald.scheduled_posts
		WHERE status = 'scheduled'
		  AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due posts: %w", err)
	}
	defer rows.Close()

	var posts []models.ScheduledPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range posts {
		media, err := s.loadMedia(ctx, posts[i].ID)
		if err != nil {
			return nil, err
		}
		posts[i].Media = media
	}

	return posts, nil
}

// Get retrieves a single post without its media payload.
func (s *Store) Get(ctx context.Context, id string) (*models.ScheduledPost, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, platform, content, scheduled_at, status, retry_count,
		       external_ref, post_url, last_error, delegated_job_id,
		       created_at, updated_at
		FROM herald.scheduled_posts
		WHERE id = $1
	`, id)

	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Claim transitions a post from scheduled to posting. The write is
// conditional on the prior status so two overlapping invocations cannot both
// attempt the same post.
func (s *Store) Claim(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE herald.scheduled_posts
		SET status = 'posting', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return fmt.Errorf("claim post %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// MarkPosted records a successful publish: terminal posted status with the
// platform reference, clearing any error from earlier attempts. Repeating the
// call with the same values leaves the row unchanged.
func (s *Store) MarkPosted(ctx context.Context, id, externalRef, postURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE herald.scheduled_posts
		SET status = 'posted',
		    external_ref = $2,
		    post_url = NULLIF($3, ''),
		    last_error = NULL,
		    posted_at = COALESCE(posted_at, NOW()),
		    updated_at = NOW()
		WHERE id = $1
	`, id, externalRef, postURL)
	if err != nil {
		return fmt.Errorf("mark post %s posted: %w", id, err)
	}
	return nil
}

// ReleaseForRetry returns a post to the due pool after a failed attempt,
// recording the incremented retry count and the diagnostic message.
func (s *Store) ReleaseForRetry(ctx context.Context, id string, retryCount int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE herald.scheduled_posts
		SET status = 'scheduled',
		    retry_count = $2,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, retryCount, lastError)
	if err != nil {
		return fmt.Errorf("release post %s for retry: %w", id, err)
	}
	return nil
}

// MarkFailed records a terminal failure after the retry budget is exhausted.
func (s *Store) MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE herald.scheduled_posts
		SET status = 'failed',
		    retry_count = $2,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, retryCount, lastError)
	if err != nil {
		return fmt.Errorf("mark post %s failed: %w", id, err)
	}
	return nil
}

// ListDelegated returns posts whose execution is delegated to an external
// scheduling service and whose local status has not reached a terminal state.
func (s *Store) ListDelegated(ctx context.Context, limit int) ([]models.ScheduledPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, content, scheduled_at, status, retry_count,
		       external_ref, post_url, last_error, delegated_job_id,
		       created_at, updated_at
		FROM herald.scheduled_posts
		WHERE status IN ('scheduled', 'posting')
		  AND delegated_job_id IS NOT NULL
		ORDER BY scheduled_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list delegated posts: %w", err)
	}
	defer rows.Close()

	var posts []models.ScheduledPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) loadMedia(ctx context.Context, postID string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data
		FROM herald.post_media
		WHERE post_id = $1
		ORDER BY display_order ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("load media for post %s: %w", postID, err)
	}
	defer rows.Close()

	var media [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		media = append(media, data)
	}
	return media, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (models.ScheduledPost, error) {
	var p models.ScheduledPost
	err := row.Scan(
		&p.ID, &p.Platform, &p.Content, &p.ScheduledAt, &p.Status, &p.RetryCount,
		&p.ExternalRef, &p.PostURL, &p.LastError, &p.DelegatedJobID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
