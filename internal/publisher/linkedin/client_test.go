package linkedin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"herald/internal/credentials"
	"herald/pkg/logging"
)

func testCreds() credentials.LinkedIn {
	return credentials.LinkedIn{AccessToken: "token"}
}

func TestPublishFallsBackToLegacyProfileEndpoint(t *testing.T) {
	var shareBody map[string]interface{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/userinfo":
			w.WriteHeader(http.StatusNotFound)
		case "/v2/me":
			require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"id":"abc"}`))
		case "/v2/ugcPosts":
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &shareBody))
			w.Header().Set("X-RestLi-Id", "urn:li:share:999")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient(testCreds(), logging.NewLogger(), WithBaseURL(ts.URL))
	result := client.Publish(context.Background(), "Hello network", nil)

	require.True(t, result.Success)
	require.Equal(t, "urn:li:share:999", result.PostID)
	require.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:999", result.PostURL)

	require.Equal(t, "urn:li:person:abc", shareBody["author"])
	require.Equal(t, "PUBLISHED", shareBody["lifecycleState"])

	content := shareBody["specificContent"].(map[string]interface{})["com.linkedin.ugc.ShareContent"].(map[string]interface{})
	require.Equal(t, "NONE", content["shareMediaCategory"])
	require.Equal(t, "Hello network", content["shareCommentary"].(map[string]interface{})["text"])
}

func TestPublishUploadsImagesAndSkipsFailures(t *testing.T) {
	var registers int32
	var shareBody map[string]interface{}

	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/userinfo":
			w.Write([]byte(`{"sub":"u1"}`))
		case r.URL.Path == "/v2/assets":
			n := atomic.AddInt32(&registers, 1)
			if n == 2 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			resp := map[string]interface{}{
				"value": map[string]interface{}{
					"asset": "urn:li:digitalmediaAsset:a1",
					"uploadMechanism": map[string]interface{}{
						"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]string{
							"uploadUrl": ts.URL + "/upload/1",
						},
					},
				},
			}
			json.NewEncoder(w).Encode(resp)
		case r.URL.Path == "/upload/1" && r.Method == http.MethodPut:
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/v2/ugcPosts":
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &shareBody))
			w.Header().Set("X-RestLi-Id", "urn:li:share:1")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient(testCreds(), logging.NewLogger(), WithBaseURL(ts.URL))
	result := client.Publish(context.Background(), "two images", [][]byte{{1}, {2}})

	require.True(t, result.Success)
	require.EqualValues(t, 2, registers)

	content := shareBody["specificContent"].(map[string]interface{})["com.linkedin.ugc.ShareContent"].(map[string]interface{})
	require.Equal(t, "IMAGE", content["shareMediaCategory"])
	media := content["media"].([]interface{})
	require.Len(t, media, 1)
	require.Equal(t, "urn:li:digitalmediaAsset:a1", media[0].(map[string]interface{})["media"])
}

func TestPublishFailsWhenProfileUnresolvable(t *testing.T) {
	var shares int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/ugcPosts" {
			atomic.AddInt32(&shares, 1)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := NewClient(testCreds(), logging.NewLogger(), WithBaseURL(ts.URL))
	result := client.Publish(context.Background(), "hello", nil)

	require.False(t, result.Success)
	require.Contains(t, result.Message, "profile")
	require.EqualValues(t, 0, shares)
}

func TestPublishFailsWithoutCredentials(t *testing.T) {
	var requests int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer ts.Close()

	client := NewClient(credentials.LinkedIn{}, logging.NewLogger(), WithBaseURL(ts.URL))
	result := client.Publish(context.Background(), "hello", nil)

	require.False(t, result.Success)
	require.Contains(t, result.Message, "LINKEDIN_ACCESS_TOKEN")
	require.EqualValues(t, 0, requests)
}
