package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"herald/internal/credentials"
	"herald/pkg/clients"
	"herald/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// Job statuses reported by the delegated scheduling service.
const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// PlatformResult is one platform's outcome within a delegated job.
type PlatformResult struct {
	Platform    string `json:"platform"`
	Status      string `json:"status"`
	ExternalRef string `json:"external_ref,omitempty"`
	PostURL     string `json:"post_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

// JobStatus is the delegated scheduler's view of a job.
type JobStatus struct {
	Status  string           `json:"status"`
	Results []PlatformResult `json:"results"`
}

// Client talks to the external scheduling service for deployments that
// delegate publishing instead of executing it locally.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	logger       logging.Logger
}

// NewClient creates a delegated-scheduler client.
func NewClient(creds credentials.Scheduler, logger logging.Logger) *Client {
	return &Client{
		baseURL:      creds.BaseURL,
		apiKey:       creds.APIKey,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		httpExecutor: clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
		logger:       logger,
	}
}

// Configured reports whether delegated scheduling is set up.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// GetStatus fetches the current status of a delegated job.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("scheduler is not configured")
	}

	endpoint := fmt.Sprintf("%s/v1/jobs/%s/status", c.baseURL, url.PathEscape(jobID))
	resp, err := clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.httpClient.Do(req)
		if err == nil && clients.DefaultShouldRetry(resp, nil) {
			_ = resp.Body.Close()
		}
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("job status request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scheduler returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var status JobStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse job status: %w", err)
	}
	return &status, nil
}
