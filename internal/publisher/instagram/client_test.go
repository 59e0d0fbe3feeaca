package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"herald/internal/credentials"
	"herald/internal/imagehost"
	"herald/pkg/logging"
)

func testCreds() credentials.Instagram {
	return credentials.Instagram{
		AccessToken:       "token",
		BusinessAccountID: "17890",
	}
}

func newImageHost(t *testing.T) (*imagehost.Client, *int32) {
	t.Helper()
	var uploads int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload", r.URL.Path)
		atomic.AddInt32(&uploads, 1)
		w.Write([]byte(`{"url":"https://img.example.com/abc.jpg"}`))
	}))
	t.Cleanup(ts.Close)
	return imagehost.NewClient(credentials.ImageHost{BaseURL: ts.URL}, logging.NewLogger()), &uploads
}

func TestPublishRequiresAtLeastOneImage(t *testing.T) {
	var requests int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer ts.Close()

	host, uploads := newImageHost(t)
	client := NewClient(testCreds(), host, logging.NewLogger(), WithBaseURL(ts.URL))

	result := client.Publish(context.Background(), "no images", nil)

	require.False(t, result.Success)
	require.Contains(t, result.Message, "at least one image")
	require.EqualValues(t, 0, requests, "zero-image posts must fail before any network call")
	require.EqualValues(t, 0, *uploads)
}

func TestPublishRunsContainerFlow(t *testing.T) {
	var polls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/17890/media":
			require.NoError(t, r.ParseForm())
			require.Equal(t, "https://img.example.com/abc.jpg", r.PostForm.Get("image_url"))
			require.Equal(t, "caption text", r.PostForm.Get("caption"))
			require.Equal(t, "token", r.PostForm.Get("access_token"))
			w.Write([]byte(`{"id":"c1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/c1":
			if atomic.AddInt32(&polls, 1) < 2 {
				w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
				return
			}
			w.Write([]byte(`{"status_code":"FINISHED"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/17890/media_publish":
			require.NoError(t, r.ParseForm())
			require.Equal(t, "c1", r.PostForm.Get("creation_id"))
			w.Write([]byte(`{"id":"ig9"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	host, uploads := newImageHost(t)
	client := NewClient(testCreds(), host, logging.NewLogger(),
		WithBaseURL(ts.URL), WithPollInterval(time.Millisecond))

	result := client.Publish(context.Background(), "caption text", [][]byte{{0xFF}})

	require.True(t, result.Success)
	require.Equal(t, "ig9", result.PostID)
	require.EqualValues(t, 1, *uploads)
	require.EqualValues(t, 2, polls)
}

func TestPublishTimesOutWhenContainerNeverFinishes(t *testing.T) {
	var polls, publishes int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/17890/media":
			w.Write([]byte(`{"id":"c1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/c1":
			atomic.AddInt32(&polls, 1)
			w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
		case r.URL.Path == "/17890/media_publish":
			atomic.AddInt32(&publishes, 1)
			w.Write([]byte(`{"id":"never"}`))
		}
	}))
	defer ts.Close()

	host, _ := newImageHost(t)
	client := NewClient(testCreds(), host, logging.NewLogger(),
		WithBaseURL(ts.URL), WithPollInterval(time.Millisecond))

	result := client.Publish(context.Background(), "stuck", [][]byte{{0xFF}})

	require.False(t, result.Success)
	require.Contains(t, result.Message, "timed out")
	require.EqualValues(t, 15, polls)
	require.EqualValues(t, 0, publishes, "a container that never finishes must not be published")
}

func TestPublishFailsOnContainerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/17890/media":
			w.Write([]byte(`{"id":"c1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/c1":
			w.Write([]byte(`{"status_code":"ERROR"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	host, _ := newImageHost(t)
	client := NewClient(testCreds(), host, logging.NewLogger(),
		WithBaseURL(ts.URL), WithPollInterval(time.Millisecond))

	result := client.Publish(context.Background(), "bad media", [][]byte{{0xFF}})

	require.False(t, result.Success)
	require.Contains(t, result.Message, "processing failed")
}

func TestPublishFailsWithoutImageHost(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer ts.Close()

	host := imagehost.NewClient(credentials.ImageHost{}, logging.NewLogger())
	client := NewClient(testCreds(), host, logging.NewLogger(), WithBaseURL(ts.URL))

	result := client.Publish(context.Background(), "caption", [][]byte{{0xFF}})

	require.False(t, result.Success)
	require.Contains(t, result.Message, "image host is not configured")
}
