package descriptor

import "errors"

var (
	// ErrUnsupportedProvider means no descriptor exists for the provider.
	// It is a wiring mistake, not a user error.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrUnknownAspectRatio  = errors.New("unknown aspect ratio")
	ErrUnknownTier         = errors.New("unknown resolution tier")
	ErrUnknownOutputFormat = errors.New("unknown output format")

	// ErrUnsupportedOutputFormat means the provider's model cannot produce an
	// otherwise valid format.
	ErrUnsupportedOutputFormat = errors.New("output format not supported by provider")
)
