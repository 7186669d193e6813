// Package fake provides a scripted model.Client for tests: a fixed queue of
// responses returned in order, one per Complete call.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/microsoft/stepfly/internal/model"
)

// Client replays a scripted sequence of responses. It is safe for concurrent
// use so it can back multiple workers (OS processes in production, plain
// goroutines in tests) within one test run.
type Client struct {
	mu        sync.Mutex
	responses []model.Response
	calls     []model.Request
	next      int
}

// New constructs a Client that returns responses in order, then repeats the
// last response for any call beyond len(responses).
func New(responses ...model.Response) *Client {
	return &Client{responses: responses}
}

// Complete returns the next scripted response.
func (c *Client) Complete(_ context.Context, req model.Request) (model.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if len(c.responses) == 0 {
		return model.Response{}, fmt.Errorf("fake: no scripted responses configured")
	}
	idx := c.next
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	} else {
		c.next++
	}
	return c.responses[idx], nil
}

// Calls returns every request Complete has observed, in order.
func (c *Client) Calls() []model.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Request, len(c.calls))
	copy(out, c.calls)
	return out
}
