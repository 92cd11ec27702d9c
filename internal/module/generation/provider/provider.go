// Package provider adapts external image generation services to one
// start/poll contract. Callers never branch on which service is behind it.
package provider

import (
	"context"
	"errors"
)

// Provider names, used in configuration and persisted on each job.
const (
	Replicate = "replicate"
	Fal       = "fal"
)

// Status is the normalized job status shared by all adapters.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Errors every adapter reports. Callers match them with errors.Is.
var (
	// ErrProviderUnavailable covers transport failures, timeouts, throttling
	// and 5xx responses. Safe to retry the whole request.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderRejected means the provider refused the request as invalid.
	ErrProviderRejected = errors.New("provider rejected request")
	// ErrInsufficientProviderCredit means the provider account that pays for
	// the call cannot be charged.
	ErrInsufficientProviderCredit = errors.New("insufficient provider credit")
	// ErrTimeout is returned by AwaitTerminal when the wait runs out. The
	// provider job itself is untouched.
	ErrTimeout = errors.New("timed out waiting for provider")
	// ErrInvalidHandle means a handle was not issued by this adapter.
	ErrInvalidHandle = errors.New("invalid provider job handle")
)

// Result is one observation of a provider job.
type Result struct {
	Status  Status
	Outputs []string
	Error   string
}

// Adapter is implemented once per external generation service.
//
// credential is the caller's own provider key; empty means the service key.
// Poll is a pure read and may be called any number of times.
type Adapter interface {
	Name() string
	Start(ctx context.Context, modelID string, payload map[string]any, credential string) (string, error)
	Poll(ctx context.Context, handle, credential string) (*Result, error)
}
