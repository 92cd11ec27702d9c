package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AwaitTerminal polls handle every interval until the job is terminal or
// maxWait elapses, in which case it returns ErrTimeout. It never cancels the
// provider job. Unavailable poll errors are retried inside the window; any
// other poll error ends the wait.
func AwaitTerminal(ctx context.Context, a Adapter, handle, credential string, maxWait, interval time.Duration) (*Result, error) {
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		res, err := a.Poll(ctx, handle, credential)
		switch {
		case err == nil && res.Status.Terminal():
			return res, nil
		case err != nil && !errors.Is(err, ErrProviderUnavailable):
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			if lastErr != nil {
				return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, maxWait, lastErr)
			}
			return nil, fmt.Errorf("%w after %s", ErrTimeout, maxWait)
		case <-ticker.C:
		}
	}
}
