package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReplicateServer(t *testing.T, handler http.HandlerFunc) *ReplicateAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewReplicateAdapter(srv.Client(), srv.URL, "service-token")
}

func TestReplicateAdapter_Start(t *testing.T) {
	t.Run("creates prediction on model endpoint", func(t *testing.T) {
		var gotPath, gotAuth string
		var gotBody map[string]any
		a := newReplicateServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotBody)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"pred-123","status":"starting"}`))
		})

		handle, err := a.Start(context.Background(), "bytedance/seedream-4", map[string]any{"prompt": "a fox"}, "")
		require.NoError(t, err)

		assert.Equal(t, "pred-123", handle)
		assert.Equal(t, "/v1/models/bytedance/seedream-4/predictions", gotPath)
		assert.Equal(t, "Bearer service-token", gotAuth)
		assert.Equal(t, map[string]any{"prompt": "a fox"}, gotBody["input"])
	})

	t.Run("versioned model uses predictions endpoint", func(t *testing.T) {
		var gotPath string
		var gotBody map[string]any
		a := newReplicateServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &gotBody)
			_, _ = w.Write([]byte(`{"id":"pred-9","status":"starting"}`))
		})

		_, err := a.Start(context.Background(), "owner/model:abc123", map[string]any{"prompt": "x"}, "")
		require.NoError(t, err)

		assert.Equal(t, "/v1/predictions", gotPath)
		assert.Equal(t, "abc123", gotBody["version"])
	})

	t.Run("caller credential overrides service token", func(t *testing.T) {
		var gotAuth string
		a := newReplicateServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"id":"pred-1"}`))
		})

		_, err := a.Start(context.Background(), "bytedance/seedream-4", nil, "user-token")
		require.NoError(t, err)
		assert.Equal(t, "Bearer user-token", gotAuth)
	})

	t.Run("malformed model id", func(t *testing.T) {
		a := NewReplicateAdapter(nil, "http://unused", "t")
		_, err := a.Start(context.Background(), "no-owner", nil, "")
		assert.ErrorIs(t, err, ErrProviderRejected)
	})

	t.Run("no credential at all", func(t *testing.T) {
		a := NewReplicateAdapter(nil, "http://unused", "")
		_, err := a.Start(context.Background(), "bytedance/seedream-4", nil, "")
		assert.ErrorIs(t, err, ErrProviderRejected)
	})
}

func TestReplicateAdapter_StartErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"payment required", http.StatusPaymentRequired, `{"detail":"You have insufficient credit"}`, ErrInsufficientProviderCredit},
		{"validation", http.StatusUnprocessableEntity, `{"detail":"input.prompt is required"}`, ErrProviderRejected},
		{"throttled", http.StatusTooManyRequests, `{"detail":"slow down"}`, ErrProviderUnavailable},
		{"server error", http.StatusBadGateway, `bad gateway`, ErrProviderUnavailable},
		{"request timeout", http.StatusRequestTimeout, ``, ErrProviderUnavailable},
		{"missing id", http.StatusCreated, `{"status":"starting"}`, ErrProviderUnavailable},
		{"garbage body", http.StatusCreated, `not json`, ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newReplicateServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := a.Start(context.Background(), "bytedance/seedream-4", nil, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReplicateAdapter_StartTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	a := NewReplicateAdapter(nil, srv.URL, "t")

	_, err := a.Start(context.Background(), "bytedance/seedream-4", nil, "")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestReplicateAdapter_Poll(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  Status
		outputs []string
		errMsg  string
	}{
		{"processing", `{"id":"p","status":"processing","output":null}`, StatusProcessing, nil, ""},
		{"succeeded with list", `{"id":"p","status":"succeeded","output":["https://replicate.delivery/a.png"]}`, StatusSucceeded, []string{"https://replicate.delivery/a.png"}, ""},
		{"succeeded with string", `{"id":"p","status":"succeeded","output":"https://replicate.delivery/b.webp"}`, StatusSucceeded, []string{"https://replicate.delivery/b.webp"}, ""},
		{"succeeded empty", `{"id":"p","status":"succeeded","output":[]}`, StatusSucceeded, []string{}, ""},
		{"failed", `{"id":"p","status":"failed","error":"NSFW content detected"}`, StatusFailed, nil, "NSFW content detected"},
		{"aborted", `{"id":"p","status":"aborted"}`, StatusCanceled, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			a := newReplicateServer(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := a.Poll(context.Background(), "p", "")
			require.NoError(t, err)

			assert.Equal(t, "/v1/predictions/p", gotPath)
			assert.Equal(t, tt.status, res.Status)
			if tt.outputs == nil {
				assert.Empty(t, res.Outputs)
			} else {
				assert.Equal(t, len(tt.outputs), len(res.Outputs))
				for i := range tt.outputs {
					assert.Equal(t, tt.outputs[i], res.Outputs[i])
				}
			}
			assert.Equal(t, tt.errMsg, res.Error)
		})
	}
}

func TestReplicateAdapter_PollIsPure(t *testing.T) {
	calls := 0
	a := newReplicateServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"id":"p","status":"succeeded","output":["https://x/a.png"]}`))
	})

	for i := 0; i < 3; i++ {
		res, err := a.Poll(context.Background(), "p", "")
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, res.Status)
	}
	assert.Equal(t, 3, calls)
}
