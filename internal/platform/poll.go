package platform

import (
	"context"
	"fmt"
	"time"
)

// Poll calls check every interval until it reports done, returns an error,
// or timeout passes. Context cancellation is returned as is.
func Poll(ctx context.Context, interval, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrProcessingTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
