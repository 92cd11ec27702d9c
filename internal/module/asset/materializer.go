// Package asset moves provider output from ephemeral URLs into durable storage.
package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/artboard/server/internal/utils/metrics"
)

// ErrMaterializationFailed covers source fetch failures, unusable payloads and
// store write errors. The job must not complete when this is returned.
var ErrMaterializationFailed = errors.New("materialization failed")

// ObjectStore is the durable byte store. Put returns a stable public URL.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// Config holds materializer limits.
type Config struct {
	Timeout  time.Duration
	MaxBytes int64
}

// DefaultConfig returns default materializer limits.
func DefaultConfig() *Config {
	return &Config{
		Timeout:  60 * time.Second,
		MaxBytes: 32 << 20,
	}
}

// Materializer copies a generated image into the object store. It does not
// deduplicate: callers guarantee at most one call per job.
type Materializer struct {
	store   ObjectStore
	client  *http.Client
	config  *Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewMaterializer creates a materializer.
func NewMaterializer(store ObjectStore, client *http.Client, cfg *Config, m *metrics.Metrics, logger *zap.Logger) *Materializer {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{
		store:   store,
		client:  client,
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
}

// Materialize fetches sourceURL and stores it, returning the durable URL.
func (m *Materializer) Materialize(ctx context.Context, sourceURL string) (string, error) {
	url, err := m.materialize(ctx, sourceURL)
	if m.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		m.metrics.RecordMaterialization(outcome)
	}
	return url, err
}

func (m *Materializer) materialize(ctx context.Context, sourceURL string) (string, error) {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	data, header, err := m.fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	contentType := detectContentType(header, data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: source is %s, not an image", ErrMaterializationFailed, contentType)
	}

	if decodable(contentType) {
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("%w: decode %s: %v", ErrMaterializationFailed, contentType, err)
		}
		bounds := img.Bounds()
		m.logger.Debug("materializing image",
			zap.String("content_type", contentType),
			zap.Int("width", bounds.Dx()),
			zap.Int("height", bounds.Dy()),
			zap.Int("bytes", len(data)),
		)
	}

	url, err := m.store.Put(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: store: %v", ErrMaterializationFailed, err)
	}
	return url, nil
}

func (m *Materializer) fetch(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMaterializationFailed, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch: %v", ErrMaterializationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: fetch: status %d", ErrMaterializationFailed, resp.StatusCode)
	}
	if m.config.MaxBytes > 0 && resp.ContentLength > m.config.MaxBytes {
		return nil, "", fmt.Errorf("%w: source is %d bytes, limit %d", ErrMaterializationFailed, resp.ContentLength, m.config.MaxBytes)
	}

	reader := io.Reader(resp.Body)
	if m.config.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, m.config.MaxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read: %v", ErrMaterializationFailed, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty source body", ErrMaterializationFailed)
	}
	if m.config.MaxBytes > 0 && int64(len(data)) > m.config.MaxBytes {
		return nil, "", fmt.Errorf("%w: source exceeds %d bytes", ErrMaterializationFailed, m.config.MaxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// detectContentType trusts a specific image header and sniffs otherwise.
func detectContentType(header string, data []byte) string {
	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mediaType, "image/") {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}

func decodable(contentType string) bool {
	switch contentType {
	case "image/png", "image/jpeg", "image/gif":
		return true
	}
	return false
}
