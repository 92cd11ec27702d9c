package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 4 << 20

// classifier may claim a non-2xx response before default classification.
type classifier func(status int, body []byte) error

// httpCaller performs JSON calls and maps failures onto the shared errors.
type httpCaller struct {
	client   *http.Client
	name     string
	classify classifier
}

func (h *httpCaller) do(ctx context.Context, method, url, authorization string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %v", ErrProviderRejected, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrProviderRejected, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", authorization)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, h.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", ErrProviderUnavailable, h.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if h.classify != nil {
			if err := h.classify(resp.StatusCode, respBody); err != nil {
				return err
			}
		}
		return classifyStatus(h.name, resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrProviderUnavailable, h.name, err)
	}
	return nil
}

// classifyStatus maps an HTTP failure status onto the shared error kinds.
func classifyStatus(name string, status int, body []byte) error {
	detail := errorDetail(body)
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return fmt.Errorf("%w: %s: status %d: %s", ErrProviderUnavailable, name, status, detail)
	case status == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s: %s", ErrInsufficientProviderCredit, name, detail)
	default:
		return fmt.Errorf("%w: %s: status %d: %s", ErrProviderRejected, name, status, detail)
	}
}

// errorDetail extracts a human readable message from an error body.
func errorDetail(body []byte) string {
	var parsed struct {
		Detail json.RawMessage `json:"detail"`
		Error  json.RawMessage `json:"error"`
		Title  string          `json:"title"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, raw := range []json.RawMessage{parsed.Detail, parsed.Error} {
			if msg := rawMessage(raw); msg != "" {
				return msg
			}
		}
		if parsed.Title != "" {
			return parsed.Title
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// rawMessage renders a JSON value that may be a string or a structure.
func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
