// Package merge reconciles a freshly fetched HTML document into the live
// document: head merge by id, body replacement, and script reactivation.
// Elements carrying a preserved id belong to the live-reload client itself
// and are never removed, replaced or re-created.
package merge

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
)

// Ids of the elements the development server injects into every page.
const (
	ConfigScriptID = "__web_dev_server_config"
	ClientScriptID = "__web_dev_server_client"
)

// PreservedIDs lists the ids merge and reactivation never touch, in the
// order preserved body elements are re-appended.
var PreservedIDs = []string{ConfigScriptID, ClientScriptID}

// IsPreserved reports whether id is in PreservedIDs.
func IsPreserved(id string) bool {
	return id != "" && slices.Contains(PreservedIDs, id)
}

// Stats summarises one Apply.
type Stats struct {
	TitleSet     bool
	HeadReplaced int
	HeadAppended int
	HeadSkipped  int
	BodyNodes    int
	BodyKept     int
	ScriptsRerun int
}

// Apply merges fetched (a parsed document) into doc: title, head, body,
// then reactivates the scripts of the live head and body.
func Apply(ctx context.Context, doc dom.Document, fetched *html.Node) (Stats, error) {
	var st Stats

	if title := dom.Title(fetched); title != "" {
		if err := doc.SetTitle(ctx, title); err != nil {
			return st, fmt.Errorf("merge: set title: %w", err)
		}
		st.TitleSet = true
	}

	if head := dom.FindFirst(fetched, atom.Head); head != nil {
		hs, err := MergeHead(ctx, doc, head)
		if err != nil {
			return st, err
		}
		st.HeadReplaced, st.HeadAppended, st.HeadSkipped = hs.Replaced, hs.Appended, hs.Skipped
	}

	if body := dom.FindFirst(fetched, atom.Body); body != nil {
		imported, kept, err := ReplaceBody(ctx, doc, body)
		if err != nil {
			return st, err
		}
		st.BodyNodes, st.BodyKept = imported, kept
	}

	liveHead, err := doc.Head(ctx)
	if err != nil {
		return st, fmt.Errorf("merge: live head: %w", err)
	}
	n, err := ReactivateScripts(ctx, doc, liveHead)
	st.ScriptsRerun += n
	if err != nil {
		return st, err
	}

	liveBody, err := doc.Body(ctx)
	if err != nil {
		return st, fmt.Errorf("merge: live body: %w", err)
	}
	n, err = ReactivateScripts(ctx, doc, liveBody)
	st.ScriptsRerun += n
	return st, err
}
