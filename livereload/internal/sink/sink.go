// Package sink defines output backends for live-reload outcomes.
package sink

import (
	"context"

	"github.com/hazyhaar/devlive/livereload/notify"
)

// Sink is the output interface. Implementations deliver outcomes to
// different backends (stdout, webhook, SQLite journal, in-process callback).
type Sink interface {
	Send(ctx context.Context, o notify.Outcome) error
	Close() error
}
