package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"herald/internal/credentials"
	"herald/internal/models"
	"herald/pkg/logging"
)

const (
	defaultBaseURL = "https://api.linkedin.com"
	defaultTimeout = 30 * time.Second

	// Feed shares carry at most nine images.
	maxImages = 9

	feedShareRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
)

// Client publishes feed shares with bearer-token auth: resolve the acting
// member, register and upload each image as an asset, then create the share.
type Client struct {
	creds      credentials.LinkedIn
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithBaseURL overrides the API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// NewClient creates a LinkedIn adapter.
func NewClient(creds credentials.LinkedIn, logger logging.Logger, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Platform returns the platform tag this adapter serves.
func (c *Client) Platform() models.Platform {
	return models.PlatformLinkedIn
}

// Publish resolves the author URN, uploads images (skipping any that fail),
// and creates the share. Losing every image still publishes a text share;
// failing to resolve the author is fatal for the item.
func (c *Client) Publish(ctx context.Context, text string, media [][]byte) models.PublishResult {
	if err := c.creds.Validate(); err != nil {
		return models.Failure(err.Error())
	}

	author, err := c.resolveAuthor(ctx)
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to resolve LinkedIn profile: %v", err))
	}

	if len(media) > maxImages {
		media = media[:maxImages]
	}

	var assets []string
	for i, image := range media {
		asset, err := c.uploadImage(ctx, author, image)
		if err != nil {
			c.logger.WithError(err).WithField("index", i).Warn("LinkedIn image upload failed, skipping image")
			continue
		}
		assets = append(assets, asset)
	}

	return c.createShare(ctx, author, text, assets)
}

// resolveAuthor returns the acting member's URN. The current profile endpoint
// is tried first; older tokens only work against /v2/me, so that is the
// fallback.
func (c *Client) resolveAuthor(ctx context.Context) (string, error) {
	if id, err := c.fetchProfileID(ctx, "/v2/userinfo", "sub"); err == nil {
		return "urn:li:person:" + id, nil
	}

	id, err := c.fetchProfileID(ctx, "/v2/me", "id")
	if err != nil {
		return "", err
	}
	return "urn:li:person:" + id, nil
}

func (c *Client) fetchProfileID(ctx context.Context, path, field string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("profile endpoint %s returned status %d", path, resp.StatusCode)
	}

	var profile map[string]interface{}
	if err := json.Unmarshal(respBody, &profile); err != nil {
		return "", fmt.Errorf("failed to parse profile response: %w", err)
	}
	id, _ := profile[field].(string)
	if id == "" {
		return "", fmt.Errorf("profile response missing %s", field)
	}
	return id, nil
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string `json:"uploadUrl"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

// uploadImage registers an upload slot for the image and PUTs the raw bytes
// to the returned one-time URL, yielding the asset URN.
func (c *Client) uploadImage(ctx context.Context, author string, image []byte) (string, error) {
	registerBody := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{feedShareRecipe},
			"owner":   author,
			"serviceRelationships": []map[string]string{
				{
					"relationshipType": "OWNER",
					"identifier":       "urn:li:userGeneratedContent",
				},
			},
		},
	}

	jsonBody, err := json.Marshal(registerBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/assets?action=registerUpload", bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("register upload failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("register upload returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var registered registerUploadResponse
	if err := json.Unmarshal(respBody, &registered); err != nil {
		return "", fmt.Errorf("failed to parse register upload response: %w", err)
	}

	var uploadURL string
	for _, mechanism := range registered.Value.UploadMechanism {
		if mechanism.UploadURL != "" {
			uploadURL = mechanism.UploadURL
			break
		}
	}
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", fmt.Errorf("register upload response missing upload url or asset")
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	putReq.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	putReq.Header.Set("Content-Type", "application/octet-stream")

	putResp, err := c.httpClient.Do(putReq)
	if err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode < 200 || putResp.StatusCode >= 300 {
		return "", fmt.Errorf("image upload returned status %d", putResp.StatusCode)
	}

	return registered.Value.Asset, nil
}

func (c *Client) createShare(ctx context.Context, author, text string, assets []string) models.PublishResult {
	mediaCategory := "NONE"
	shareMedia := make([]map[string]string, 0, len(assets))
	if len(assets) > 0 {
		mediaCategory = "IMAGE"
		for _, asset := range assets {
			shareMedia = append(shareMedia, map[string]string{
				"status": "READY",
				"media":  asset,
			})
		}
	}

	shareContent := map[string]interface{}{
		"shareCommentary":    map[string]string{"text": text},
		"shareMediaCategory": mediaCategory,
	}
	if len(shareMedia) > 0 {
		shareContent["media"] = shareMedia
	}

	postBody := map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	jsonBody, err := json.Marshal(postBody)
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to encode share payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/ugcPosts", bytes.NewReader(jsonBody))
	if err != nil {
		return models.Failure(fmt.Sprintf("failed to build share request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Failure(fmt.Sprintf("share request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return models.Failure(fmt.Sprintf("share returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	// The created share's id comes back in a response header, not the body.
	postID := resp.Header.Get("X-RestLi-Id")
	if postID == "" {
		postID = resp.Header.Get("X-Restli-Id")
	}

	c.logger.WithFields(logging.Fields{
		"post_id":     postID,
		"asset_count": len(assets),
	}).Info("Published LinkedIn share")

	result := models.PublishResult{
		Success: true,
		Message: "posted",
		PostID:  postID,
	}
	if postID != "" {
		result.PostURL = "https://www.linkedin.com/feed/update/" + postID
	}
	return result
}
