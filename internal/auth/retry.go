// ABOUTME: Bounded retry wrapper for storage operations
// ABOUTME: Domain errors pass through untouched; persistent storage failure surfaces as ErrUnavailable

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/2389/asf-auth/internal/store"
)

// Storage retry policy: a couple of quick attempts, then fail closed.
const (
	storageRetries = 2
	storageBackoff = 50 * time.Millisecond
)

// domainErrors are expected store outcomes, not outages. They are never
// retried and never rewrapped as ErrUnavailable.
var domainErrors = []error{
	store.ErrUserNotFound,
	store.ErrEmailTaken,
	store.ErrSessionNotFound,
	store.ErrTokenNotFound,
	store.ErrTokenConsumed,
	store.ErrTokenExpired,
}

func isDomainError(err error) bool {
	for _, sentinel := range domainErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// withRetry runs a storage operation with bounded retries. Domain errors
// return immediately; anything else is retried and, if it persists,
// surfaced as ErrUnavailable. A storage failure is never converted into a
// success.
func withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(storageRetries, retry.NewConstant(storageBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isDomainError(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
