package patch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hazyhaar/devlive/livereload/internal/urlpath"
	"github.com/hazyhaar/devlive/livereload/notify"
)

// ApplyCSS rewrites the href of every stylesheet link whose resolved
// pathname equals path, forcing the browser to refetch it. No match, or no
// path, becomes a full reload.
func (a *Applier) ApplyCSS(ctx context.Context, path string) (notify.Action, error) {
	if path == "" {
		return a.fallback(ctx, ReasonMissingPath, nil, false)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	loc, err := a.doc.Location(ctx)
	if err != nil {
		return a.fallback(ctx, ReasonDocument, err, true)
	}
	want := urlpath.Pathname(loc, path)

	links, err := a.doc.QuerySelectorAll(ctx, nil, "link")
	if err != nil {
		return a.fallback(ctx, ReasonDocument, err, true)
	}

	matched := 0
	for _, link := range links {
		rel, _ := link.Attr("rel")
		if !hasToken(rel, "stylesheet") {
			continue
		}
		href, ok := link.Attr("href")
		if !ok {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := loc.ResolveReference(ref)
		if abs.EscapedPath() != want {
			continue
		}
		if err := a.doc.SetAttribute(ctx, link, "href", a.fresh.Bust(abs)); err != nil {
			return a.fallback(ctx, ReasonDocument, fmt.Errorf("set href: %w", err), true)
		}
		matched++
	}

	if matched == 0 {
		return a.fallback(ctx, ReasonNoStyle, nil, true)
	}
	a.logger.Info("patch: css applied", "path", want, "links", matched)
	return notify.ActionPatchCSS, nil
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}
