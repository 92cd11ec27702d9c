package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultFalBaseURL is the public queue API.
const DefaultFalBaseURL = "https://queue.fal.run"

// FalAdapter talks to a queue-style API: submit to a model's queue, then poll
// status and fetch the result by (model, request id).
type FalAdapter struct {
	http    httpCaller
	baseURL string
	key     string
}

// NewFalAdapter creates a queue adapter. key is the service key used when a
// call carries no caller credential.
func NewFalAdapter(client *http.Client, baseURL, key string) *FalAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultFalBaseURL
	}
	return &FalAdapter{
		http:    httpCaller{client: client, name: Fal, classify: classifyFal},
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
	}
}

// Name returns the provider name.
func (a *FalAdapter) Name() string { return Fal }

type falSubmitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type falStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type falResultResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Image *struct {
		URL string `json:"url"`
	} `json:"image"`
}

// Start enqueues a request and returns a handle carrying the model id.
func (a *FalAdapter) Start(ctx context.Context, modelID string, payload map[string]any, credential string) (string, error) {
	auth, err := a.authorization(credential)
	if err != nil {
		return "", err
	}
	if strings.Trim(modelID, "/") == "" {
		return "", fmt.Errorf("%w: empty model id", ErrProviderRejected)
	}

	var submit falSubmitResponse
	endpoint := a.baseURL + "/" + escapePath(strings.Trim(modelID, "/"))
	if err := a.http.do(ctx, http.MethodPost, endpoint, auth, payload, &submit); err != nil {
		return "", err
	}
	if submit.RequestID == "" {
		return "", fmt.Errorf("%w: fal: request id missing from response", ErrProviderUnavailable)
	}
	return EncodeQueueHandle(modelID, submit.RequestID), nil
}

// Poll checks queue status and, once complete, fetches the result.
func (a *FalAdapter) Poll(ctx context.Context, handle, credential string) (*Result, error) {
	modelID, requestID, err := DecodeQueueHandle(handle)
	if err != nil {
		return nil, err
	}
	auth, err := a.authorization(credential)
	if err != nil {
		return nil, err
	}

	base := a.baseURL + "/" + escapePath(queueAppID(modelID)) + "/requests/" + url.PathEscape(requestID)

	var status falStatusResponse
	if err := a.http.do(ctx, http.MethodGet, base+"/status", auth, nil, &status); err != nil {
		return nil, err
	}

	normalized := falStatus(status.Status)
	if normalized != StatusSucceeded {
		return &Result{Status: normalized, Error: status.Error}, nil
	}
	if status.Error != "" {
		return &Result{Status: StatusFailed, Error: status.Error}, nil
	}

	// COMPLETED covers both outcomes; the result body tells them apart.
	var result falResultResponse
	if err := a.http.do(ctx, http.MethodGet, base, auth, nil, &result); err != nil {
		if errors.Is(err, ErrProviderRejected) {
			return &Result{Status: StatusFailed, Error: err.Error()}, nil
		}
		return nil, err
	}

	var outputs []string
	for _, img := range result.Images {
		if img.URL != "" {
			outputs = append(outputs, img.URL)
		}
	}
	if len(outputs) == 0 && result.Image != nil && result.Image.URL != "" {
		outputs = append(outputs, result.Image.URL)
	}
	return &Result{Status: StatusSucceeded, Outputs: outputs}, nil
}

func (a *FalAdapter) authorization(credential string) (string, error) {
	key := credential
	if key == "" {
		key = a.key
	}
	if key == "" {
		return "", fmt.Errorf("%w: fal: no API key configured", ErrProviderRejected)
	}
	return "Key " + key, nil
}

// falStatus maps the native vocabulary. Unknown values stay non-terminal.
func falStatus(native string) Status {
	switch strings.ToUpper(native) {
	case "IN_QUEUE":
		return StatusStarting
	case "IN_PROGRESS":
		return StatusProcessing
	case "COMPLETED":
		return StatusSucceeded
	case "FAILED", "ERROR":
		return StatusFailed
	case "CANCELLED", "CANCELED":
		return StatusCanceled
	default:
		return StatusProcessing
	}
}

// queueAppID returns the owner/app prefix the queue serves status and results
// under. Submissions may target a sub-path such as owner/app/v4/edit.
func queueAppID(modelID string) string {
	parts := strings.Split(strings.Trim(modelID, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

// classifyFal recognizes the queue's "account locked, balance exhausted" 403.
func classifyFal(status int, body []byte) error {
	if status != http.StatusForbidden {
		return nil
	}
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("balance")) || bytes.Contains(lower, []byte("locked")) {
		return fmt.Errorf("%w: fal: %s", ErrInsufficientProviderCredit, errorDetail(body))
	}
	return nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

var _ Adapter = (*FalAdapter)(nil)
