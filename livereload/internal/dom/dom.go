// Package dom defines the document capability the live-reload client
// mutates, and an in-memory implementation built on golang.org/x/net/html.
//
// The client never touches a rendering engine directly. Everything it does
// to the live page goes through Document, so the same merge and patch code
// drives a real Chrome tab (see internal/browser) or the in-memory model
// used by tests and headless tooling.
package dom

import (
	"context"
	"errors"
	"net/url"

	"golang.org/x/net/html"
)

// ErrForeignNode is returned when a Node handle from another Document is
// passed to a Document method.
var ErrForeignNode = errors.New("dom: node belongs to another document")

// Node is a handle to a node of a live document. Text and comment nodes
// report an empty Tag and ID.
type Node interface {
	// Tag is the lower-case element name, or "" for non-element nodes.
	Tag() string
	// ID is the element's id attribute, or "".
	ID() string
	// Attr returns the attribute value and whether it is present.
	Attr(name string) (string, bool)
}

// Document is the set of operations the client performs on the live page.
//
// Nodes returned by ImportNode are detached and inert: script elements
// among them do not execute when inserted. Only ReactivateScript produces
// a script that runs.
type Document interface {
	// Location is the URL of the currently displayed page.
	Location(ctx context.Context) (*url.URL, error)
	// Navigate replaces the current history entry with target and loads it.
	Navigate(ctx context.Context, target string) error
	// SetTitle sets the document title.
	SetTitle(ctx context.Context, title string) error

	Head(ctx context.Context) (Node, error)
	Body(ctx context.Context) (Node, error)
	// Children returns the element children of parent.
	Children(ctx context.Context, parent Node) ([]Node, error)
	// QuerySelectorAll returns descendants of root matching selector, in
	// document order. A nil root searches the whole document.
	QuerySelectorAll(ctx context.Context, root Node, selector string) ([]Node, error)

	// ImportNode deep-copies n into this document as a detached node.
	ImportNode(ctx context.Context, n *html.Node) (Node, error)
	// ReplaceNode puts repl where old is and detaches old.
	ReplaceNode(ctx context.Context, old, repl Node) error
	// AppendChild appends child to parent, moving it if already attached.
	AppendChild(ctx context.Context, parent, child Node) error
	// ReplaceChildren replaces every child node of parent with children,
	// moving nodes that are already attached elsewhere.
	ReplaceChildren(ctx context.Context, parent Node, children []Node) error
	SetAttribute(ctx context.Context, n Node, name, value string) error

	// ReactivateScript replaces a script element with a freshly built one
	// carrying the same attributes, and the same inline text when it has
	// no src. The fresh element executes; the old one never did.
	ReactivateScript(ctx context.Context, script Node) error
}
