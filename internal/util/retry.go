package util

import (
	"context"
	"time"
)

// Retry calls fn up to maxAttempts times, doubling the delay between attempts
// starting from baseDelay. It returns nil on the first success, the context
// error if cancelled while waiting, or the last attempt's error otherwise.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		// No backoff sleep after the final attempt.
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return err
}
