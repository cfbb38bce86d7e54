package dom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Execution records a script run by ReactivateScript on a Memory document.
type Execution struct {
	ID   string
	Src  string
	Text string
}

// Memory is an in-memory Document. It honours the script contract of
// Document: parsed and imported scripts stay inert, reactivated scripts are
// recorded as executed. Navigate records the replacement and updates the
// location but keeps the current tree.
type Memory struct {
	mu          sync.Mutex
	root        *html.Node
	location    *url.URL
	inert       map[*html.Node]bool
	executed    []Execution
	navigations []string
}

var _ Document = (*Memory)(nil)

// NewMemory parses r as the document displayed at location.
func NewMemory(location string, r io.Reader) (*Memory, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("dom: parse location: %w", err)
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse document: %w", err)
	}
	return &Memory{
		root:     root,
		location: loc,
		inert:    make(map[*html.Node]bool),
	}, nil
}

// ParseMemory is NewMemory for a string.
func ParseMemory(location, markup string) (*Memory, error) {
	return NewMemory(location, strings.NewReader(markup))
}

type memNode struct {
	doc *Memory
	n   *html.Node
}

func (m memNode) Tag() string {
	if m.n.Type != html.ElementNode {
		return ""
	}
	return m.n.Data
}

func (m memNode) ID() string { return ElementID(m.n) }

func (m memNode) Attr(name string) (string, bool) {
	if m.n.Type != html.ElementNode || !hasAttr(m.n, name) {
		return "", false
	}
	return getAttr(m.n, name), true
}

func (d *Memory) wrap(n *html.Node) Node { return memNode{doc: d, n: n} }

func (d *Memory) own(n Node) (*html.Node, error) {
	mn, ok := n.(memNode)
	if !ok || mn.doc != d {
		return nil, ErrForeignNode
	}
	return mn.n, nil
}

func (d *Memory) Location(_ context.Context) (*url.URL, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := *d.location
	return &u, nil
}

func (d *Memory) Navigate(_ context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("dom: navigate: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.location = d.location.ResolveReference(u)
	d.navigations = append(d.navigations, target)
	return nil
}

func (d *Memory) SetTitle(_ context.Context, title string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := findTitle(d.root)
	if t == nil {
		head := FindFirst(d.root, atom.Head)
		if head == nil {
			return fmt.Errorf("dom: set title: no head")
		}
		t = &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		head.AppendChild(t)
	}
	for c := t.FirstChild; c != nil; {
		next := c.NextSibling
		t.RemoveChild(c)
		c = next
	}
	t.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	return nil
}

func (d *Memory) Head(_ context.Context) (Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	head := FindFirst(d.root, atom.Head)
	if head == nil {
		return nil, fmt.Errorf("dom: no head element")
	}
	return d.wrap(head), nil
}

func (d *Memory) Body(_ context.Context) (Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	body := FindFirst(d.root, atom.Body)
	if body == nil {
		return nil, fmt.Errorf("dom: no body element")
	}
	return d.wrap(body), nil
}

func (d *Memory) Children(_ context.Context, parent Node) ([]Node, error) {
	p, err := d.own(parent)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Node
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, d.wrap(c))
		}
	}
	return out, nil
}

func (d *Memory) QuerySelectorAll(_ context.Context, root Node, selector string) ([]Node, error) {
	r := d.root
	if root != nil {
		var err error
		if r, err = d.own(root); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	matches := querySelectorAll(r, selector)
	out := make([]Node, 0, len(matches))
	for _, n := range matches {
		out = append(out, d.wrap(n))
	}
	return out, nil
}

func (d *Memory) ImportNode(_ context.Context, n *html.Node) (Node, error) {
	if n == nil {
		return nil, fmt.Errorf("dom: import nil node")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(d.cloneLocked(n)), nil
}

func (d *Memory) cloneLocked(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	if c.Type == html.ElementNode && c.DataAtom == atom.Script {
		d.inert[c] = true
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(d.cloneLocked(ch))
	}
	return c
}

func (d *Memory) ReplaceNode(_ context.Context, old, repl Node) error {
	o, err := d.own(old)
	if err != nil {
		return err
	}
	r, err := d.own(repl)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if o.Parent == nil {
		return fmt.Errorf("dom: replace detached node")
	}
	if o == r {
		return nil
	}
	detach(r)
	o.Parent.InsertBefore(r, o)
	o.Parent.RemoveChild(o)
	return nil
}

func (d *Memory) AppendChild(_ context.Context, parent, child Node) error {
	p, err := d.own(parent)
	if err != nil {
		return err
	}
	c, err := d.own(child)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	detach(c)
	p.AppendChild(c)
	return nil
}

func (d *Memory) ReplaceChildren(_ context.Context, parent Node, children []Node) error {
	p, err := d.own(parent)
	if err != nil {
		return err
	}
	nodes := make([]*html.Node, 0, len(children))
	for _, ch := range children {
		n, err := d.own(ch)
		if err != nil {
			return err
		}
		nodes = append(nodes, n)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range nodes {
		detach(n)
	}
	for c := p.FirstChild; c != nil; {
		next := c.NextSibling
		p.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		p.AppendChild(n)
	}
	return nil
}

func (d *Memory) SetAttribute(_ context.Context, n Node, name, value string) error {
	el, err := d.own(n)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if el.Type != html.ElementNode {
		return fmt.Errorf("dom: set attribute on non-element")
	}
	for i, a := range el.Attr {
		if a.Namespace == "" && a.Key == name {
			el.Attr[i].Val = value
			return nil
		}
	}
	el.Attr = append(el.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

func (d *Memory) ReactivateScript(_ context.Context, script Node) error {
	old, err := d.own(script)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if old.Type != html.ElementNode || old.DataAtom != atom.Script {
		return fmt.Errorf("dom: reactivate non-script <%s>", old.Data)
	}
	if old.Parent == nil {
		return fmt.Errorf("dom: reactivate detached script")
	}

	fresh := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	fresh.Attr = make([]html.Attribute, len(old.Attr))
	copy(fresh.Attr, old.Attr)

	exec := Execution{ID: getAttr(old, "id")}
	if hasAttr(old, "src") {
		exec.Src = getAttr(old, "src")
	} else {
		exec.Text = TextContent(old)
		fresh.AppendChild(&html.Node{Type: html.TextNode, Data: exec.Text})
	}

	old.Parent.InsertBefore(fresh, old)
	old.Parent.RemoveChild(old)
	delete(d.inert, old)
	d.executed = append(d.executed, exec)
	return nil
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Executed returns the scripts run so far, in order.
func (d *Memory) Executed() []Execution {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Execution(nil), d.executed...)
}

// Navigations returns every target passed to Navigate, in order.
func (d *Memory) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigations...)
}

// Inert reports whether n is an imported script that has not been
// reactivated.
func (d *Memory) Inert(n Node) bool {
	el, err := d.own(n)
	if err != nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inert[el]
}

// Root returns the underlying tree. Callers must not mutate it concurrently
// with Document operations.
func (d *Memory) Root() *html.Node { return d.root }

// HTML renders the current document.
func (d *Memory) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return ""
	}
	return buf.String()
}
