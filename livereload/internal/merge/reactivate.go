package merge

import (
	"context"
	"fmt"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
)

// ReactivateScripts re-runs every script element under root by swapping it
// for a fresh copy, which the document executes. Preserved scripts are
// left alone. It returns the number of scripts reactivated.
func ReactivateScripts(ctx context.Context, doc dom.Document, root dom.Node) (int, error) {
	scripts, err := doc.QuerySelectorAll(ctx, root, "script")
	if err != nil {
		return 0, fmt.Errorf("merge: find scripts: %w", err)
	}
	n := 0
	for _, s := range scripts {
		if IsPreserved(s.ID()) {
			continue
		}
		if err := doc.ReactivateScript(ctx, s); err != nil {
			return n, fmt.Errorf("merge: reactivate script: %w", err)
		}
		n++
	}
	return n, nil
}
