package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"herald/internal/credentials"
	"herald/internal/imagehost"
	"herald/internal/models"
	"herald/pkg/logging"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v19.0"
	defaultTimeout = 30 * time.Second

	// Container processing is asynchronous: poll every 2s, give up after 15
	// attempts (~30s ceiling) without a terminal status.
	defaultPollInterval = 2 * time.Second
	maxPollAttempts     = 15
)

// Container processing statuses reported by the Graph API.
const (
	containerFinished   = "FINISHED"
	containerError      = "ERROR"
	containerInProgress = "IN_PROGRESS"
)

// Client publishes via the Graph API container flow: host the image at a
// public URL, create a media container, wait for processing, publish.
type Client struct {
	creds        credentials.Instagram
	imageHost    *imagehost.Client
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       logging.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithBaseURL overrides the Graph API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithPollInterval overrides the container poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
	}
}

// NewClient creates an Instagram adapter.
func NewClient(creds credentials.Instagram, host *imagehost.Client, logger logging.Logger, opts ...Option) *Client {
	c := &Client{
		creds:        creds,
		imageHost:    host,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		pollInterval: defaultPollInterval,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Platform returns the platform tag this adapter serves.
func (c *Client) Platform() models.Platform {
	return models.PlatformInstagram
}

// Publish runs the container flow for the first image. There is no text-only
// post on this platform, so zero images fails immediately without touching
// the network.
func (c *Client) Publish(ctx context.Context, text string, media [][]byte) models.PublishResult {
	if len(media) == 0 {
		return models.Failure("instagram requires at least one image")
	}
	if err := c.creds.Validate(); err != nil {
		return models.Failure(err.Error())
	}
	if !c.imageHost.Configured() {
		return models.Failure("image host is not configured; instagram publishing requires a public image URL")
	}

	imageURL, err := c.imageHost.Upload(ctx, media[0])
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to host image: %v", err))
	}

	creationID, err := c.createContainer(ctx, imageURL, text)
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to create media container: %v", err))
	}

	if err := c.waitForContainer(ctx, creationID); err != nil {
		return models.Failure(err.Error())
	}

	mediaID, err := c.publishContainer(ctx, creationID)
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to publish media container: %v", err))
	}

	c.logger.WithFields(logging.Fields{
		"media_id":    mediaID,
		"creation_id": creationID,
	}).Info("Published Instagram post")

	return models.PublishResult{
		Success: true,
		Message: "posted",
		PostID:  mediaID,
	}
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *Client) createContainer(ctx context.Context, imageURL, caption string) (string, error) {
	params := url.Values{}
	params.Set("image_url", imageURL)
	params.Set("caption", caption)
	params.Set("access_token", c.creds.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/media", c.baseURL, c.creds.BusinessAccountID)
	var created idResponse
	if err := c.postForm(ctx, endpoint, params, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("container response missing id")
	}
	return created.ID, nil
}

type containerStatusResponse struct {
	StatusCode string `json:"status_code"`
}

// waitForContainer polls the container until it is ready to publish. ERROR is
// a terminal failure; exhausting the attempt budget is a timeout failure and
// the container is never published.
func (c *Client) waitForContainer(ctx context.Context, creationID string) error {
	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		status, err := c.containerStatus(ctx, creationID)
		if err != nil {
			return fmt.Errorf("failed to check container status: %w", err)
		}

		switch status {
		case containerFinished:
			return nil
		case containerError:
			return fmt.Errorf("media container processing failed")
		}

		if attempt == maxPollAttempts {
			break
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("timed out waiting for media container to finish processing")
}

func (c *Client) containerStatus(ctx context.Context, creationID string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
		c.baseURL, creationID, url.QueryEscape(c.creds.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status check returned %d: %s", resp.StatusCode, string(respBody))
	}

	var status containerStatusResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return "", fmt.Errorf("failed to parse status response: %w", err)
	}
	return status.StatusCode, nil
}

func (c *Client) publishContainer(ctx context.Context, creationID string) (string, error) {
	params := url.Values{}
	params.Set("creation_id", creationID)
	params.Set("access_token", c.creds.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/media_publish", c.baseURL, c.creds.BusinessAccountID)
	var published idResponse
	if err := c.postForm(ctx, endpoint, params, &published); err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", fmt.Errorf("publish response missing id")
	}
	return published.ID, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return json.Unmarshal(respBody, out)
}
