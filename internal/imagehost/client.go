package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"herald/internal/credentials"
	"herald/pkg/clients"
	"herald/pkg/logging"
)

const defaultTimeout = 30 * time.Second

// Client uploads image bytes to the image-hosting collaborator and returns a
// publicly reachable URL. Instagram publishing depends on it: the Graph API
// only ingests media by public URL.
//
// Uploads are retried with backoff; re-uploading the same bytes is harmless,
// unlike retrying a post creation.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	logger       logging.Logger
}

// NewClient creates an image host client from the collaborator configuration.
func NewClient(creds credentials.ImageHost, logger logging.Logger) *Client {
	return &Client{
		baseURL:      creds.BaseURL,
		apiKey:       creds.APIKey,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		httpExecutor: clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
		logger:       logger,
	}
}

// Configured reports whether the collaborator is set up at all.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload pushes image bytes to the host and returns the public URL.
func (c *Client) Upload(ctx context.Context, image []byte) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("image host is not configured")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "image")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	payload := body.Bytes()
	contentType := writer.FormDataContentType()

	resp, err := clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
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
		return "", fmt.Errorf("image upload failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image host returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var uploaded uploadResponse
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return "", fmt.Errorf("failed to parse image host response: %w", err)
	}
	if uploaded.URL == "" {
		return "", fmt.Errorf("image host response missing url")
	}

	c.logger.WithField("url", uploaded.URL).Debug("Uploaded image to host")
	return uploaded.URL, nil
}
