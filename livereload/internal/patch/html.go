package patch

import (
	"context"
	"errors"

	"github.com/hazyhaar/devlive/livereload/internal/merge"
	"github.com/hazyhaar/devlive/livereload/notify"
)

// ApplyHTML fetches a fresh copy of path and merges it into the live
// document: title, head, body, then script reactivation. Any failure to
// fetch or merge becomes a full reload, reported as *ErrFallback. If a
// newer diff or a reload starts while the fetch is pending, the result is
// dropped and ErrSuperseded returned. Ordering follows the sequence number
// attached with WithSequence, so the last notification to arrive wins.
func (a *Applier) ApplyHTML(ctx context.Context, path string) (notify.Action, error) {
	if path == "" {
		return a.fallback(ctx, ReasonMissingPath, nil, false)
	}

	loc, err := a.doc.Location(ctx)
	if err != nil {
		return a.fallback(ctx, ReasonFetch, err, false)
	}
	target := a.fresh.CacheBust(loc, path)

	seq := a.sequenceOf(ctx)
	fctx, cancel, ok := a.begin(ctx, seq)
	if !ok {
		a.logger.Debug("patch: html diff overtaken before fetch", "path", path)
		return notify.ActionSkip, ErrSuperseded
	}
	defer cancel()

	res, err := a.fetch.Fetch(fctx, target)
	if err != nil {
		if !a.current(seq) || (errors.Is(err, context.Canceled) && ctx.Err() == nil) {
			a.logger.Debug("patch: html fetch superseded", "path", path)
			return notify.ActionSkip, ErrSuperseded
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return a.fallback(ctx, ReasonFetch, err, false)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(seq) {
		a.logger.Debug("patch: stale html discarded", "path", path)
		return notify.ActionSkip, ErrSuperseded
	}

	st, err := merge.Apply(ctx, a.doc, res.Document)
	if err != nil {
		return a.fallback(ctx, ReasonMerge, err, true)
	}
	a.logger.Info("patch: html applied",
		"path", path,
		"head_replaced", st.HeadReplaced,
		"head_appended", st.HeadAppended,
		"body_nodes", st.BodyNodes,
		"scripts", st.ScriptsRerun)
	return notify.ActionPatchHTML, nil
}
