package sink

import (
	"context"

	"github.com/hazyhaar/devlive/livereload/notify"
)

// OutcomeFunc is called for each outcome.
type OutcomeFunc func(ctx context.Context, o notify.Outcome) error

// Callback delivers outcomes via a Go function call, for embedders that
// run the client in-process.
type Callback struct {
	fn OutcomeFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn OutcomeFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, o notify.Outcome) error {
	if c.fn != nil {
		return c.fn(ctx, o)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
