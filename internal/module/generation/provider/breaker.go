package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds circuit breaker settings for one adapter.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	Interval            time.Duration
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		Interval:            60 * time.Second,
	}
}

// BreakerAdapter fails fast with ErrProviderUnavailable while the provider
// keeps failing. Only unavailability trips it: rejected requests and credit
// errors are the caller's problem, not the provider's health.
type BreakerAdapter struct {
	next    Adapter
	breaker *gobreaker.CircuitBreaker[any]
}

// WithBreaker decorates next with a circuit breaker.
func WithBreaker(next Adapter, cfg *BreakerConfig) *BreakerAdapter {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = DefaultBreakerConfig().ConsecutiveFailures
	}

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrProviderUnavailable)
		},
	}

	return &BreakerAdapter{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Name returns the wrapped provider name.
func (b *BreakerAdapter) Name() string { return b.next.Name() }

// State exposes the breaker state for health reporting.
func (b *BreakerAdapter) State() gobreaker.State { return b.breaker.State() }

// Start calls the wrapped adapter unless the breaker is open.
func (b *BreakerAdapter) Start(ctx context.Context, modelID string, payload map[string]any, credential string) (string, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.next.Start(ctx, modelID, payload, credential)
	})
	if err != nil {
		return "", b.translate(err)
	}
	return out.(string), nil
}

// Poll calls the wrapped adapter unless the breaker is open.
func (b *BreakerAdapter) Poll(ctx context.Context, handle, credential string) (*Result, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return b.next.Poll(ctx, handle, credential)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return out.(*Result), nil
}

func (b *BreakerAdapter) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: circuit open", ErrProviderUnavailable, b.next.Name())
	}
	return err
}

var _ Adapter = (*BreakerAdapter)(nil)
