package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/stepfly/internal/llmclient/fake"
	"github.com/microsoft/stepfly/internal/llmclient/ratelimit"
	"github.com/microsoft/stepfly/internal/model"
)

func TestWrapZeroRPSReturnsInnerUnchanged(t *testing.T) {
	inner := fake.New(model.Response{Content: "ok"})
	require.Same(t, model.Client(inner), ratelimit.Wrap(inner, 0))
	require.Same(t, model.Client(inner), ratelimit.Wrap(inner, -1))
}

func TestWrapDelegatesToInner(t *testing.T) {
	inner := fake.New(model.Response{Content: "ok"})
	limited := ratelimit.Wrap(inner, 100)

	resp, err := limited.Complete(context.Background(), model.Request{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Len(t, inner.Calls(), 1)
}

func TestWrapSpacesOutCalls(t *testing.T) {
	inner := fake.New(model.Response{Content: "ok"})
	limited := ratelimit.Wrap(inner, 20) // 50ms between calls

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := limited.Complete(context.Background(), model.Request{})
		require.NoError(t, err)
	}
	// First call consumes the initial token; the next two wait ~50ms each.
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWrapHonorsContextCancellation(t *testing.T) {
	inner := fake.New(model.Response{Content: "ok"})
	limited := ratelimit.Wrap(inner, 0.001)

	_, err := limited.Complete(context.Background(), model.Request{}) // drains the bucket
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Complete(ctx, model.Request{})
	require.Error(t, err)
	require.Len(t, inner.Calls(), 1, "the cancelled call must never reach the inner client")
}
