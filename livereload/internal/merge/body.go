package merge

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
)

// ReplaceBody replaces the children of the live body with imported copies
// of fetchedBody's child nodes. Fetched nodes with a preserved id are not
// imported; live preserved elements anywhere in the body are moved to the
// end of the new child list instead of being dropped. It returns the number
// of imported and kept nodes.
func ReplaceBody(ctx context.Context, doc dom.Document, fetchedBody *html.Node) (imported, kept int, err error) {
	body, err := doc.Body(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("merge: live body: %w", err)
	}

	var next []dom.Node
	for c := fetchedBody.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			if IsPreserved(dom.ElementID(c)) {
				continue
			}
		case html.TextNode:
			if c.Data == "" {
				continue
			}
		case html.CommentNode:
		default:
			continue
		}
		n, err := doc.ImportNode(ctx, c)
		if err != nil {
			return 0, 0, fmt.Errorf("merge: import body <%s>: %w", c.Data, err)
		}
		next = append(next, n)
	}
	imported = len(next)

	for _, id := range PreservedIDs {
		found, err := doc.QuerySelectorAll(ctx, body, "#"+id)
		if err != nil {
			return 0, 0, fmt.Errorf("merge: find preserved #%s: %w", id, err)
		}
		next = append(next, found...)
		kept += len(found)
	}

	if err := doc.ReplaceChildren(ctx, body, next); err != nil {
		return 0, 0, fmt.Errorf("merge: replace body: %w", err)
	}
	return imported, kept, nil
}
