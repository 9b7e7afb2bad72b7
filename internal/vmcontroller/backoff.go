package vmcontroller

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewAPIBackoff returns a randomized exponential backoff used when retrying
// transient Kubernetes API errors: 200ms initial interval, doubling, capped
// at 30s, retried forever until the caller's context is cancelled.
func NewAPIBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // caller bounds retries via context, not elapsed time
	return b
}

// retryAPI runs fn, retrying with NewAPIBackoff while the returned error
// IsTransient, and returning immediately on any other error (including a
// cancelled ctx). Used by the object reconcilers around Create/Update calls
// that can race another client or hit a momentarily unavailable API server.
func retryAPI(ctx context.Context, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(NewAPIBackoff(), ctx))
}
