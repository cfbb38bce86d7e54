package merge

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
)

// HeadStats counts what MergeHead did.
type HeadStats struct {
	Replaced int
	Appended int
	Skipped  int
}

// MergeHead reconciles the element children of fetchedHead into the live
// head. Live children are indexed by id; a fetched child with an indexed id
// replaces that element in place, anything else is appended. The merge is
// additive: live children absent from fetchedHead stay.
func MergeHead(ctx context.Context, doc dom.Document, fetchedHead *html.Node) (HeadStats, error) {
	var st HeadStats

	head, err := doc.Head(ctx)
	if err != nil {
		return st, fmt.Errorf("merge: live head: %w", err)
	}
	existing, err := doc.Children(ctx, head)
	if err != nil {
		return st, fmt.Errorf("merge: head children: %w", err)
	}

	index := make(map[string]dom.Node, len(existing))
	for _, el := range existing {
		if id := el.ID(); id != "" {
			if _, dup := index[id]; !dup {
				index[id] = el
			}
		}
	}

	for c := fetchedHead.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		id := dom.ElementID(c)
		if IsPreserved(id) {
			st.Skipped++
			continue
		}

		imported, err := doc.ImportNode(ctx, c)
		if err != nil {
			return st, fmt.Errorf("merge: import <%s>: %w", c.Data, err)
		}

		if live, ok := index[id]; ok && id != "" {
			if err := doc.ReplaceNode(ctx, live, imported); err != nil {
				return st, fmt.Errorf("merge: replace #%s: %w", id, err)
			}
			delete(index, id)
			st.Replaced++
			continue
		}

		if err := doc.AppendChild(ctx, head, imported); err != nil {
			return st, fmt.Errorf("merge: append <%s>: %w", c.Data, err)
		}
		st.Appended++
	}
	return st, nil
}
