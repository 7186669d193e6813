// Package retry wraps github.com/cenkalti/backoff/v4 for the engine's two
// bounded, in-process retry loops: the code interpreter's generate-execute
// cycle and the worker's malformed-LLM-JSON retry
// cycle. Neither is network fault-recovery, so a small
// constant backoff is enough; what's worth reusing is the bounded-attempt
// counting and last-error propagation rather than a hand-rolled counter.
package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Do runs fn up to maxAttempts times, returning the last error if every
// attempt fails. fn itself decides whether an error is worth retrying by
// returning it; Do does not inspect error types.
func Do(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(0), uint64(maxAttempts-1)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		return fn(attempt)
	}, policy)
}

// Permanent marks err as non-retryable: Do stops immediately and returns it
// without consuming the remaining attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
