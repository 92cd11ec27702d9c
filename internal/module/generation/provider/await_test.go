package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAdapter replays a fixed sequence of poll observations.
type scriptedAdapter struct {
	mu     sync.Mutex
	steps  []pollStep
	polls  int
	starts int
}

type pollStep struct {
	result *Result
	err    error
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) Start(ctx context.Context, modelID string, payload map[string]any, credential string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	return "handle", nil
}

func (s *scriptedAdapter) Poll(ctx context.Context, handle, credential string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.polls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.polls++
	return s.steps[i].result, s.steps[i].err
}

func (s *scriptedAdapter) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func TestAwaitTerminal_ReturnsTerminal(t *testing.T) {
	a := &scriptedAdapter{steps: []pollStep{
		{result: &Result{Status: StatusStarting}},
		{result: &Result{Status: StatusProcessing}},
		{result: &Result{Status: StatusSucceeded, Outputs: []string{"https://x/a.png"}}},
	}}

	res, err := AwaitTerminal(context.Background(), a, "handle", "", time.Second, time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, 3, a.pollCount())
}

func TestAwaitTerminal_RetriesUnavailable(t *testing.T) {
	a := &scriptedAdapter{steps: []pollStep{
		{err: ErrProviderUnavailable},
		{result: &Result{Status: StatusFailed, Error: "boom"}},
	}}

	res, err := AwaitTerminal(context.Background(), a, "handle", "", time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestAwaitTerminal_StopsOnOtherErrors(t *testing.T) {
	a := &scriptedAdapter{steps: []pollStep{
		{err: ErrInvalidHandle},
	}}

	_, err := AwaitTerminal(context.Background(), a, "handle", "", time.Second, time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, 1, a.pollCount())
}

func TestAwaitTerminal_Timeout(t *testing.T) {
	a := &scriptedAdapter{steps: []pollStep{
		{result: &Result{Status: StatusProcessing}},
	}}

	_, err := AwaitTerminal(context.Background(), a, "handle", "", 30*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, a.starts, "awaiting never resubmits")
}

func TestAwaitTerminal_TimeoutKeepsLastError(t *testing.T) {
	a := &scriptedAdapter{steps: []pollStep{
		{err: ErrProviderUnavailable},
	}}

	_, err := AwaitTerminal(context.Background(), a, "handle", "", 20*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), ErrProviderUnavailable.Error())
}

func TestAwaitTerminal_ContextCanceled(t *testing.T) {
	a := &scriptedAdapter{steps: []pollStep{
		{result: &Result{Status: StatusProcessing}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AwaitTerminal(ctx, a, "handle", "", time.Second, 10*time.Millisecond)
	assert.True(t, errors.Is(err, context.Canceled))
}
