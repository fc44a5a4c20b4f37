package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"learning-progress-service/internal/domain"
)

// retryOnConflict runs fn up to attempts times, retrying only when fn fails with
// a revision conflict. fn must reload whatever it writes so each attempt applies
// its mutation to the latest revision. Any other error stops immediately.
func retryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 0

	var last error
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		last = err
		if errors.Is(err, domain.ErrRevisionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, domain.ErrRevisionConflict) {
			return last
		}
		if ctx.Err() != nil && last != nil {
			return last
		}
		return err
	}
	return nil
}
