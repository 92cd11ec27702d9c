package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultReplicateBaseURL is the public prediction API.
const DefaultReplicateBaseURL = "https://api.replicate.com"

// ReplicateAdapter talks to a prediction-style API: submit a prediction,
// then poll it by id.
type ReplicateAdapter struct {
	http    httpCaller
	baseURL string
	token   string
}

// NewReplicateAdapter creates a prediction adapter. token is the service key
// used when a call carries no caller credential.
func NewReplicateAdapter(client *http.Client, baseURL, token string) *ReplicateAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultReplicateBaseURL
	}
	return &ReplicateAdapter{
		http:    httpCaller{client: client, name: Replicate},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Name returns the provider name.
func (a *ReplicateAdapter) Name() string { return Replicate }

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// Start creates a prediction. Model ids of the form owner/name run the
// model's latest version; owner/name:version pins one.
func (a *ReplicateAdapter) Start(ctx context.Context, modelID string, payload map[string]any, credential string) (string, error) {
	auth, err := a.authorization(credential)
	if err != nil {
		return "", err
	}

	var endpoint string
	body := map[string]any{"input": payload}
	if name, version, ok := strings.Cut(modelID, ":"); ok {
		if name == "" || version == "" {
			return "", fmt.Errorf("%w: malformed model id %q", ErrProviderRejected, modelID)
		}
		endpoint = a.baseURL + "/v1/predictions"
		body["version"] = version
	} else {
		owner, model, ok := strings.Cut(modelID, "/")
		if !ok || owner == "" || model == "" {
			return "", fmt.Errorf("%w: malformed model id %q", ErrProviderRejected, modelID)
		}
		endpoint = fmt.Sprintf("%s/v1/models/%s/%s/predictions", a.baseURL, url.PathEscape(owner), url.PathEscape(model))
	}

	var pred replicatePrediction
	if err := a.http.do(ctx, http.MethodPost, endpoint, auth, body, &pred); err != nil {
		return "", err
	}
	if pred.ID == "" {
		return "", fmt.Errorf("%w: replicate: prediction id missing from response", ErrProviderUnavailable)
	}
	return pred.ID, nil
}

// Poll reads the prediction once.
func (a *ReplicateAdapter) Poll(ctx context.Context, handle, credential string) (*Result, error) {
	if handle == "" {
		return nil, fmt.Errorf("%w: empty prediction id", ErrInvalidHandle)
	}
	auth, err := a.authorization(credential)
	if err != nil {
		return nil, err
	}

	var pred replicatePrediction
	endpoint := a.baseURL + "/v1/predictions/" + url.PathEscape(handle)
	if err := a.http.do(ctx, http.MethodGet, endpoint, auth, nil, &pred); err != nil {
		return nil, err
	}

	result := &Result{
		Status: replicateStatus(pred.Status),
		Error:  rawMessage(pred.Error),
	}
	if result.Status == StatusSucceeded {
		result.Outputs = replicateOutputs(pred.Output)
	}
	return result, nil
}

func (a *ReplicateAdapter) authorization(credential string) (string, error) {
	token := credential
	if token == "" {
		token = a.token
	}
	if token == "" {
		return "", fmt.Errorf("%w: replicate: no API token configured", ErrProviderRejected)
	}
	return "Bearer " + token, nil
}

// replicateStatus maps the native vocabulary. Unknown values stay non-terminal.
func replicateStatus(native string) Status {
	switch native {
	case "starting":
		return StatusStarting
	case "processing":
		return StatusProcessing
	case "succeeded":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	case "canceled", "aborted":
		return StatusCanceled
	default:
		return StatusProcessing
	}
}

// replicateOutputs accepts either a single URL or a list of URLs.
func replicateOutputs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		out := many[:0]
		for _, u := range many {
			if u != "" {
				out = append(out, u)
			}
		}
		return out
	}
	return nil
}

var _ Adapter = (*ReplicateAdapter)(nil)
