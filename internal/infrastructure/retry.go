package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy runs an operation up to MaxAttempts times with exponential backoff
// starting at BaseDelay. Errors for which Retryable returns false end the loop at once.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
	OnRetry     func(attempt int, err error)
}

// NewRetryPolicy creates a policy retrying every error
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// Do runs fn until it succeeds, returns a non-retryable error, attempts run out or
// ctx is done. The last error of fn is returned unwrapped.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	backoff := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(p.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if p.OnRetry != nil && attempt < attempts {
			p.OnRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
}
