package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"

	"herald/internal/credentials"
	"herald/internal/models"
	"herald/pkg/logging"
)

const (
	defaultAPIURL    = "https://api.twitter.com"
	defaultUploadURL = "https://upload.twitter.com"
	defaultTimeout   = 30 * time.Second

	// The post endpoint accepts at most four attached images.
	maxImages = 4
)

// Client publishes posts via OAuth 1.0a user-context requests. Request
// signing (HMAC-SHA1 over the canonical parameter string) is handled by the
// oauth1 transport on every outgoing request.
type Client struct {
	creds      credentials.Twitter
	apiURL     string
	uploadURL  string
	httpClient *http.Client
	logger     logging.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithBaseURLs overrides the API and media-upload hosts.
func WithBaseURLs(apiURL, uploadURL string) Option {
	return func(c *Client) {
		c.apiURL = apiURL
		c.uploadURL = uploadURL
	}
}

// NewClient creates a Twitter adapter. The signed HTTP client is built once;
// missing credentials surface as failure results at publish time.
func NewClient(creds credentials.Twitter, logger logging.Logger, opts ...Option) *Client {
	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessSecret)
	httpClient := config.Client(oauth1.NoContext, token)
	httpClient.Timeout = defaultTimeout

	c := &Client{
		creds:      creds,
		apiURL:     defaultAPIURL,
		uploadURL:  defaultUploadURL,
		httpClient: httpClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Platform returns the platform tag this adapter serves.
func (c *Client) Platform() models.Platform {
	return models.PlatformTwitter
}

// Publish uploads up to four images and creates the post. Failed image
// uploads are skipped, not fatal: the post proceeds with whatever media made
// it through.
func (c *Client) Publish(ctx context.Context, text string, media [][]byte) models.PublishResult {
	if err := c.creds.Validate(); err != nil {
		return models.Failure(err.Error())
	}

	if len(media) > maxImages {
		media = media[:maxImages]
	}

	var mediaIDs []string
	for i, image := range media {
		mediaID, err := c.uploadMedia(ctx, image)
		if err != nil {
			c.logger.WithError(err).WithField("index", i).Warn("Twitter media upload failed, skipping image")
			continue
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	return c.createPost(ctx, text, mediaIDs)
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

func (c *Client) uploadMedia(ctx context.Context, image []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormField("media")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/1.1/media/upload.json", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("media upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("media upload returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var upload mediaUploadResponse
	if err := json.Unmarshal(respBody, &upload); err != nil {
		return "", fmt.Errorf("failed to parse media upload response: %w", err)
	}
	if upload.MediaIDString == "" {
		return "", fmt.Errorf("media upload response missing media id")
	}
	return upload.MediaIDString, nil
}

type createPostRequest struct {
	Text  string `json:"text"`
	Media *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media,omitempty"`
}

type createPostResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) createPost(ctx context.Context, text string, mediaIDs []string) models.PublishResult {
	payload := createPostRequest{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &struct {
			MediaIDs []string `json:"media_ids"`
		}{MediaIDs: mediaIDs}
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to encode post payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/2/tweets", bytes.NewReader(jsonBody))
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to build post request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Failure(fmt.Sprintf("post request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to read post response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Failure(fmt.Sprintf("post returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	var created createPostResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return models.Failure(fmt.Sprintf("failed to parse post response: %v", err))
	}
	if created.Data.ID == "" {
		return models.Failure("post response missing id")
	}

	c.logger.WithFields(logging.Fields{
		"post_id":     created.Data.ID,
		"media_count": len(mediaIDs),
	}).Info("Published Twitter post")

	return models.PublishResult{
		Success: true,
		Message: "posted",
		PostID:  created.Data.ID,
		PostURL: "https://twitter.com/i/web/status/" + created.Data.ID,
	}
}
