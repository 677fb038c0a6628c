package transfer

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/aws/smithy-go"
)

// Retry policy for individual part operations. The SDK client performs
// its own transport-level retries underneath; this layer re-drives a
// whole part so a transient failure does not sink a multi-gigabyte
// transfer.
const (
	maxAttempts = 3
	baseBackoff = 100 * time.Millisecond
	maxBackoff  = 2 * time.Second
)

// retryable reports whether a part operation is worth repeating.
// Context cancellation is never retryable.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InternalError", "ServiceUnavailable", "SlowDown", "RequestTimeout":
			return true
		}
		return false
	}

	// Transport-level failures surface as net or url errors.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// withRetry runs fn up to maxAttempts times, sleeping a jittered
// exponential backoff between attempts.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// backoff returns the sleep before the given attempt (2nd, 3rd, ...),
// doubling each time with jitter in [d/2, d).
func backoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 2)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)))
}
