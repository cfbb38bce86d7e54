// Package patch applies change notifications to a live document: HTML
// diffs are fetched and merged, CSS diffs refresh matching stylesheet
// links, anything that cannot be patched becomes a full reload.
package patch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
	"github.com/hazyhaar/devlive/livereload/internal/fetcher"
	"github.com/hazyhaar/devlive/livereload/internal/urlpath"
	"github.com/hazyhaar/devlive/livereload/notify"
)

// Config configures an Applier. Document is required.
type Config struct {
	Document  dom.Document
	Fetcher   *fetcher.Fetcher   // default fetcher.New()
	Freshness *urlpath.Freshness // default wall clock
	Logger    *slog.Logger
}

// Applier mutates one document. All DOM mutation is serialised; HTML
// fetches run concurrently but only the one with the highest sequence
// number may commit.
type Applier struct {
	doc    dom.Document
	fetch  *fetcher.Fetcher
	fresh  *urlpath.Freshness
	logger *slog.Logger

	mu sync.Mutex // DOM mutation

	seq      atomic.Uint64 // last sequence number handed out
	latest   atomic.Uint64 // highest sequence number started
	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

type seqKey struct{}

// Sequence reserves the next request sequence number. Callers that receive
// notifications take one per notification, in arrival order, and attach it
// with WithSequence before handing the work to another goroutine.
func (a *Applier) Sequence() uint64 { return a.seq.Add(1) }

// WithSequence returns a context carrying a sequence number reserved with
// Sequence. Requests without one are numbered when they start.
func WithSequence(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, seqKey{}, seq)
}

func (a *Applier) sequenceOf(ctx context.Context) uint64 {
	if seq, ok := ctx.Value(seqKey{}).(uint64); ok && seq != 0 {
		return seq
	}
	return a.Sequence()
}

// New creates an Applier.
func New(cfg Config) *Applier {
	a := &Applier{
		doc:    cfg.Document,
		fetch:  cfg.Fetcher,
		fresh:  cfg.Freshness,
		logger: cfg.Logger,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.fetch == nil {
		a.fetch = fetcher.New(fetcher.WithLogger(a.logger))
	}
	if a.fresh == nil {
		a.fresh = urlpath.NewFreshness(nil)
	}
	return a
}

// Document returns the document this Applier mutates.
func (a *Applier) Document() dom.Document { return a.doc }

// Reload replaces the current location with a cache-busted copy of its
// path. Any older HTML diff still in flight is cancelled and discarded.
func (a *Applier) Reload(ctx context.Context) error {
	a.supersede(a.sequenceOf(ctx))
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reloadLocked(ctx)
}

func (a *Applier) reloadLocked(ctx context.Context) error {
	loc, err := a.doc.Location(ctx)
	if err != nil {
		return fmt.Errorf("patch: reload: %w", err)
	}
	target := a.fresh.CacheBust(loc, loc.EscapedPath())
	if err := a.doc.Navigate(ctx, target); err != nil {
		return fmt.Errorf("patch: reload: %w", err)
	}
	a.logger.Info("patch: reload", "target", target)
	return nil
}

// fallback issues a full reload on behalf of a patch that could not be
// applied. locked reports whether the caller already holds a.mu.
func (a *Applier) fallback(ctx context.Context, reason string, cause error, locked bool) (notify.Action, error) {
	a.logger.Info("patch: fallback to reload", "reason", reason, "error", cause)
	var err error
	if locked {
		err = a.reloadLocked(ctx)
	} else {
		err = a.Reload(ctx)
	}
	if err != nil {
		return notify.ActionReload, err
	}
	return notify.ActionReload, &ErrFallback{Reason: reason, Cause: cause}
}

// supersede marks seq as the latest request and cancels the fetch of any
// older one. A request older than the latest leaves it running.
func (a *Applier) supersede(seq uint64) {
	a.cancelMu.Lock()
	defer a.cancelMu.Unlock()
	if seq <= a.latest.Load() {
		return
	}
	a.latest.Store(seq)
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// begin starts request seq, cancelling any older one. ok is false when a
// newer request has already started.
func (a *Applier) begin(ctx context.Context, seq uint64) (fctx context.Context, cancel context.CancelFunc, ok bool) {
	a.cancelMu.Lock()
	defer a.cancelMu.Unlock()
	if seq <= a.latest.Load() {
		return nil, nil, false
	}
	a.latest.Store(seq)
	if a.cancel != nil {
		a.cancel()
	}
	fctx, cancel = context.WithCancel(ctx)
	a.cancel = cancel
	return fctx, cancel, true
}

func (a *Applier) current(seq uint64) bool { return a.latest.Load() == seq }
