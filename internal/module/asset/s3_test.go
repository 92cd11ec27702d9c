package asset

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Store_Put(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewS3Store(context.Background(), &S3Config{
		Endpoint:        srv.URL,
		Region:          "auto",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Bucket:          "artboard",
		PublicBaseURL:   "https://cdn.example.com/",
	})
	require.NoError(t, err)
	store.now = func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) }

	url, err := store.Put(context.Background(), []byte("pixels"), "image/webp")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^https://cdn\.example\.com/generations/2026/03/[0-9a-f-]{36}\.webp$`), url)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(gotPath, "/artboard/generations/2026/03/"), gotPath)
	assert.Equal(t, "image/webp", gotType)
	assert.Contains(t, string(gotBody), "pixels")
}

func TestS3Store_PathStyleURL(t *testing.T) {
	store, err := NewS3Store(context.Background(), &S3Config{
		Endpoint:        "http://minio:9000",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
		Bucket:          "media",
		KeyPrefix:       "/renders/",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://minio:9000/media", store.baseURL)
	assert.True(t, strings.HasPrefix(store.objectKey("image/png"), "renders/"))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), &S3Config{})
	assert.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "png", extensionFor("image/png"))
	assert.Equal(t, "jpg", extensionFor("image/jpeg"))
	assert.Equal(t, "gif", extensionFor("image/gif"))
	assert.Equal(t, "bin", extensionFor("application/x-unknown-thing"))
}
