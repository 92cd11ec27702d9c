package credits

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
	ErrBillingUnavailable  = errors.New("billing system unavailable")
	ErrCredentialsDisabled = errors.New("provider credential storage is not configured")
	ErrInvalidCredential   = errors.New("invalid provider credential")
)
