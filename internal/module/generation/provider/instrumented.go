package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/artboard/server/internal/utils/metrics"
)

// InstrumentedAdapter records call latency and outcome for the wrapped adapter.
type InstrumentedAdapter struct {
	next    Adapter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// WithInstrumentation decorates next with metrics and debug logging.
func WithInstrumentation(next Adapter, m *metrics.Metrics, logger *zap.Logger) *InstrumentedAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedAdapter{next: next, metrics: m, logger: logger}
}

// Name returns the wrapped provider name.
func (a *InstrumentedAdapter) Name() string { return a.next.Name() }

// Start forwards to the wrapped adapter.
func (a *InstrumentedAdapter) Start(ctx context.Context, modelID string, payload map[string]any, credential string) (string, error) {
	start := time.Now()
	handle, err := a.next.Start(ctx, modelID, payload, credential)
	a.record("start", err, time.Since(start))
	if err != nil {
		a.logger.Warn("provider start failed",
			zap.String("provider", a.next.Name()),
			zap.String("model", modelID),
			zap.Error(err),
		)
	}
	return handle, err
}

// Poll forwards to the wrapped adapter.
func (a *InstrumentedAdapter) Poll(ctx context.Context, handle, credential string) (*Result, error) {
	start := time.Now()
	res, err := a.next.Poll(ctx, handle, credential)
	a.record("poll", err, time.Since(start))
	if err == nil {
		a.logger.Debug("provider poll",
			zap.String("provider", a.next.Name()),
			zap.String("handle", handle),
			zap.String("status", string(res.Status)),
		)
	}
	return res, err
}

func (a *InstrumentedAdapter) record(operation string, err error, d time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordProviderCall(a.next.Name(), operation, outcome(err), d)
}

// outcome labels an error by kind for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInsufficientProviderCredit):
		return "insufficient_credit"
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	default:
		return "error"
	}
}

var _ Adapter = (*InstrumentedAdapter)(nil)
