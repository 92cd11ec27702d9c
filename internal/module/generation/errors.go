package generation

import (
	"errors"

	"github.com/artboard/server/internal/module/asset"
	"github.com/artboard/server/internal/module/credits"
	"github.com/artboard/server/internal/module/generation/provider"
)

var (
	ErrGenerationNotFound = errors.New("generation not found")
	ErrInvalidRequest     = errors.New("invalid generation request")
	ErrEmptyOutput        = errors.New("provider reported success without output")
	ErrStartNotRecorded   = errors.New("generation start could not be recorded")

	// Re-exported so callers of this package can match every named kind
	// without importing the collaborators.
	ErrInsufficientCredits        = credits.ErrInsufficientCredits
	ErrInsufficientProviderCredit = provider.ErrInsufficientProviderCredit
	ErrProviderUnavailable        = provider.ErrProviderUnavailable
	ErrProviderRejected           = provider.ErrProviderRejected
	ErrTimeout                    = provider.ErrTimeout
	ErrMaterializationFailed      = asset.ErrMaterializationFailed
)

// kindOf classifies a provider call error.
func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, provider.ErrInsufficientProviderCredit):
		return KindInsufficientProviderCredit
	case errors.Is(err, provider.ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, provider.ErrProviderRejected), errors.Is(err, provider.ErrInvalidHandle):
		return KindProviderRejected
	default:
		return KindInternal
	}
}
