package provider

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/artboard/server/internal/utils/metrics"
)

// Endpoint holds one provider's connection settings.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Config holds connection settings for every supported provider.
type Config struct {
	Replicate Endpoint
	Fal       Endpoint
	Breaker   *BreakerConfig
}

// Names lists the supported providers.
func Names() []string {
	return []string{Replicate, Fal}
}

// New builds the adapter for name, wrapped in the circuit breaker and
// instrumentation decorators.
func New(name string, cfg *Config, client *http.Client, m *metrics.Metrics, logger *zap.Logger) (Adapter, error) {
	var base Adapter
	switch name {
	case Replicate:
		base = NewReplicateAdapter(client, cfg.Replicate.BaseURL, cfg.Replicate.APIKey)
	case Fal:
		base = NewFalAdapter(client, cfg.Fal.BaseURL, cfg.Fal.APIKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return WithInstrumentation(WithBreaker(base, cfg.Breaker), m, logger), nil
}

// NewAll builds one adapter per supported provider, keyed by name. Jobs keep
// polling the provider they started on even after the default changes.
func NewAll(cfg *Config, client *http.Client, m *metrics.Metrics, logger *zap.Logger) (map[string]Adapter, error) {
	adapters := make(map[string]Adapter, len(Names()))
	for _, name := range Names() {
		a, err := New(name, cfg, client, m, logger)
		if err != nil {
			return nil, err
		}
		adapters[name] = a
	}
	return adapters, nil
}
