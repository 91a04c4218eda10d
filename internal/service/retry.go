package service

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"
)

// retryOnConflict runs op at most twice, retrying only when it reports ErrConflict.
func retryOnConflict[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, backoff.Operation[T](func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, ErrConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}), backoff.WithBackOff(backoff.NewConstantBackOff(0)), backoff.WithMaxTries(2))
}
