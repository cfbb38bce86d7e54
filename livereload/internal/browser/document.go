package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
)

// Document is a dom.Document backed by a live Chrome page. Every operation
// is one or a few Runtime calls against the page's main frame.
type Document struct {
	page *rod.Page
}

var _ dom.Document = (*Document)(nil)

// NewDocument wraps page.
func NewDocument(page *rod.Page) *Document {
	return &Document{page: page}
}

type rodNode struct {
	doc   *Document
	el    *rod.Element
	tag   string
	attrs map[string]string
}

func (n *rodNode) Tag() string { return n.tag }
func (n *rodNode) ID() string  { return n.attrs["id"] }

func (n *rodNode) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// nodeInfoJS snapshots what Node reports without further round trips.
const nodeInfoJS = `() => JSON.stringify(this.nodeType === 1
	? {tag: this.localName, attrs: Object.fromEntries(Array.from(this.attributes, a => [a.name, a.value]))}
	: {tag: "", attrs: {}})`

type nodeInfo struct {
	Tag   string            `json:"tag"`
	Attrs map[string]string `json:"attrs"`
}

func (d *Document) wrap(ctx context.Context, el *rod.Element) (*rodNode, error) {
	res, err := el.Context(ctx).Eval(nodeInfoJS)
	if err != nil {
		return nil, fmt.Errorf("browser: describe node: %w", err)
	}
	var info nodeInfo
	if err := json.Unmarshal([]byte(res.Value.Str()), &info); err != nil {
		return nil, fmt.Errorf("browser: decode node: %w", err)
	}
	if info.Attrs == nil {
		info.Attrs = map[string]string{}
	}
	return &rodNode{doc: d, el: el, tag: info.Tag, attrs: info.Attrs}, nil
}

func (d *Document) wrapAll(ctx context.Context, els rod.Elements) ([]dom.Node, error) {
	out := make([]dom.Node, 0, len(els))
	for _, el := range els {
		n, err := d.wrap(ctx, el)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (d *Document) own(n dom.Node) (*rodNode, error) {
	rn, ok := n.(*rodNode)
	if !ok || rn.doc != d {
		return nil, dom.ErrForeignNode
	}
	return rn, nil
}

// single evaluates js expecting exactly one node, failing fast when it
// yields null.
func (d *Document) single(ctx context.Context, js string, args ...any) (*rodNode, error) {
	el, err := d.page.Context(ctx).Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(js, args...))
	if err != nil {
		return nil, err
	}
	return d.wrap(ctx, el)
}

func (d *Document) Location(ctx context.Context) (*url.URL, error) {
	res, err := d.page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return nil, fmt.Errorf("browser: location: %w", err)
	}
	u, err := url.Parse(res.Value.Str())
	if err != nil {
		return nil, fmt.Errorf("browser: parse location: %w", err)
	}
	return u, nil
}

func (d *Document) Navigate(ctx context.Context, target string) error {
	if _, err := d.page.Context(ctx).Eval(`(u) => location.replace(u)`, target); err != nil {
		return fmt.Errorf("browser: navigate: %w", err)
	}
	return nil
}

func (d *Document) SetTitle(ctx context.Context, title string) error {
	if _, err := d.page.Context(ctx).Eval(`(t) => { document.title = t }`, title); err != nil {
		return fmt.Errorf("browser: set title: %w", err)
	}
	return nil
}

func (d *Document) Head(ctx context.Context) (dom.Node, error) {
	n, err := d.single(ctx, `() => document.head`)
	if err != nil {
		return nil, fmt.Errorf("browser: head: %w", err)
	}
	return n, nil
}

func (d *Document) Body(ctx context.Context) (dom.Node, error) {
	n, err := d.single(ctx, `() => document.body`)
	if err != nil {
		return nil, fmt.Errorf("browser: body: %w", err)
	}
	return n, nil
}

func (d *Document) Children(ctx context.Context, parent dom.Node) ([]dom.Node, error) {
	p, err := d.own(parent)
	if err != nil {
		return nil, err
	}
	els, err := p.el.Context(ctx).ElementsByJS(rod.Eval(`() => Array.from(this.children)`))
	if err != nil {
		return nil, fmt.Errorf("browser: children: %w", err)
	}
	return d.wrapAll(ctx, els)
}

func (d *Document) QuerySelectorAll(ctx context.Context, root dom.Node, selector string) ([]dom.Node, error) {
	var els rod.Elements
	var err error
	if root == nil {
		els, err = d.page.Context(ctx).Elements(selector)
	} else {
		r, ownErr := d.own(root)
		if ownErr != nil {
			return nil, ownErr
		}
		els, err = r.el.Context(ctx).Elements(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return d.wrapAll(ctx, els)
}

// importJS parses markup in a template, whose content is inert: scripts in
// it are marked already-started and do not run once inserted.
const importJS = `(markup) => {
	const t = document.createElement("template");
	t.innerHTML = markup;
	return t.content.firstChild;
}`

func (d *Document) ImportNode(ctx context.Context, n *html.Node) (dom.Node, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return nil, fmt.Errorf("browser: render node: %w", err)
	}
	node, err := d.single(ctx, importJS, buf.String())
	if err != nil {
		return nil, fmt.Errorf("browser: import node: %w", err)
	}
	return node, nil
}

func (d *Document) ReplaceNode(ctx context.Context, old, repl dom.Node) error {
	o, err := d.own(old)
	if err != nil {
		return err
	}
	r, err := d.own(repl)
	if err != nil {
		return err
	}
	if _, err := o.el.Context(ctx).Eval(`(n) => this.replaceWith(n)`, r.el.Object); err != nil {
		return fmt.Errorf("browser: replace node: %w", err)
	}
	return nil
}

func (d *Document) AppendChild(ctx context.Context, parent, child dom.Node) error {
	p, err := d.own(parent)
	if err != nil {
		return err
	}
	c, err := d.own(child)
	if err != nil {
		return err
	}
	if _, err := p.el.Context(ctx).Eval(`(n) => { this.appendChild(n) }`, c.el.Object); err != nil {
		return fmt.Errorf("browser: append child: %w", err)
	}
	return nil
}

func (d *Document) ReplaceChildren(ctx context.Context, parent dom.Node, children []dom.Node) error {
	p, err := d.own(parent)
	if err != nil {
		return err
	}
	kids := make([]*rodNode, 0, len(children))
	for _, c := range children {
		k, err := d.own(c)
		if err != nil {
			return err
		}
		kids = append(kids, k)
	}

	// Emptying first and appending one by one keeps each call to a single
	// remote object argument.
	if _, err := p.el.Context(ctx).Eval(`() => { this.replaceChildren() }`); err != nil {
		return fmt.Errorf("browser: clear children: %w", err)
	}
	for _, k := range kids {
		if _, err := p.el.Context(ctx).Eval(`(n) => { this.appendChild(n) }`, k.el.Object); err != nil {
			return fmt.Errorf("browser: append child: %w", err)
		}
	}
	return nil
}

func (d *Document) SetAttribute(ctx context.Context, n dom.Node, name, value string) error {
	rn, err := d.own(n)
	if err != nil {
		return err
	}
	if _, err := rn.el.Context(ctx).Eval(`(k, v) => { this.setAttribute(k, v) }`, name, value); err != nil {
		return fmt.Errorf("browser: set attribute: %w", err)
	}
	rn.attrs[name] = value
	return nil
}

// reactivateJS builds a script element through createElement, the only
// route by which an inserted script executes.
const reactivateJS = `() => {
	const s = document.createElement("script");
	for (const a of this.attributes) s.setAttribute(a.name, a.value);
	if (!this.hasAttribute("src")) s.textContent = this.textContent;
	this.replaceWith(s);
}`

func (d *Document) ReactivateScript(ctx context.Context, script dom.Node) error {
	rn, err := d.own(script)
	if err != nil {
		return err
	}
	if rn.tag != "script" {
		return fmt.Errorf("browser: reactivate: <%s> is not a script", rn.tag)
	}
	if _, err := rn.el.Context(ctx).Eval(reactivateJS); err != nil {
		return fmt.Errorf("browser: reactivate script: %w", err)
	}
	return nil
}
