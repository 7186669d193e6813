// Package ratelimit decorates a model.Client with a token-bucket request
// limiter, so a session with several concurrent workers cannot exceed the
// provider's request-per-second allowance. The limit applies per process:
// each worker subprocess carries its own bucket, so the cap to configure is
// the provider allowance divided by the scheduler's concurrency cap.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/microsoft/stepfly/internal/model"
)

type client struct {
	inner   model.Client
	limiter *rate.Limiter
}

// Wrap returns a model.Client that waits for limiter capacity before each
// Complete call. rps <= 0 returns inner unchanged.
func Wrap(inner model.Client, rps float64) model.Client {
	if rps <= 0 {
		return inner
	}
	return &client{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (c *client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Response{}, err
	}
	return c.inner.Complete(ctx, req)
}
