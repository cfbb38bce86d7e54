package merge

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
)

const livePage = `<!DOCTYPE html>
<html>
<head>
<title>Old</title>
<style id="theme">body{color:red}</style>
<meta name="keep" content="1">
<script id="__web_dev_server_config">window.__WEB_DEV_SERVER_CONFIG__={}</script>
<script id="__web_dev_server_client" src="/_live/script.js"></script>
</head>
<body>
<h1>Old heading</h1>
<script id="__web_dev_server_client" src="/_live/body.js"></script>
</body>
</html>`

const fetchedPage = `<!DOCTYPE html>
<html>
<head>
<title>New</title>
<style id="theme">body{color:blue}</style>
<link rel="stylesheet" href="/extra.css">
<script id="__web_dev_server_client" src="/_live/other.js"></script>
</head>
<body>
<h1>New heading</h1>
<p>text</p>
<script>window.y = 2</script>
<div id="__web_dev_server_config">server copy</div>
</body>
</html>`

func setup(t *testing.T) (*dom.Memory, *html.Node) {
	t.Helper()
	d, err := dom.ParseMemory("http://localhost:8000/", livePage)
	if err != nil {
		t.Fatal(err)
	}
	fetched, err := html.Parse(strings.NewReader(fetchedPage))
	if err != nil {
		t.Fatal(err)
	}
	return d, fetched
}

func TestMergeHead(t *testing.T) {
	ctx := context.Background()
	d, fetched := setup(t)

	st, err := MergeHead(ctx, d, dom.FindFirst(fetched, atom.Head))
	if err != nil {
		t.Fatal(err)
	}
	// title, link appended; style replaced; preserved client script skipped.
	if st.Replaced != 1 || st.Appended != 2 || st.Skipped != 1 {
		t.Errorf("stats: got %+v", st)
	}

	themes, _ := d.QuerySelectorAll(ctx, nil, "#theme")
	if len(themes) != 1 {
		t.Fatalf("#theme count: got %d, want 1", len(themes))
	}
	out := d.HTML()
	if !strings.Contains(out, "color:blue") || strings.Contains(out, "color:red") {
		t.Errorf("style not replaced in place: %s", out)
	}
	if !strings.Contains(out, `<meta name="keep" content="1"/>`) {
		t.Error("head merge must be additive, meta removed")
	}
	if !strings.Contains(out, "/_live/script.js") || strings.Contains(out, "/_live/other.js") {
		t.Error("preserved client script was touched")
	}
	if !strings.Contains(out, `href="/extra.css"`) {
		t.Error("new link not appended")
	}
}

func TestMergeHead_ReplaceKeepsPosition(t *testing.T) {
	ctx := context.Background()
	d, fetched := setup(t)

	if _, err := MergeHead(ctx, d, dom.FindFirst(fetched, atom.Head)); err != nil {
		t.Fatal(err)
	}
	head, _ := d.Head(ctx)
	children, _ := d.Children(ctx, head)
	if len(children) < 2 {
		t.Fatalf("head children: got %d", len(children))
	}
	if children[1].ID() != "theme" {
		t.Errorf("replaced style moved: second head child is <%s id=%q>", children[1].Tag(), children[1].ID())
	}
}

func TestReplaceBody(t *testing.T) {
	ctx := context.Background()
	d, fetched := setup(t)

	imported, kept, err := ReplaceBody(ctx, d, dom.FindFirst(fetched, atom.Body))
	if err != nil {
		t.Fatal(err)
	}
	if kept != 1 {
		t.Errorf("kept: got %d, want 1", kept)
	}
	if imported == 0 {
		t.Error("nothing imported")
	}

	out := d.HTML()
	if strings.Contains(out, "Old heading") || !strings.Contains(out, "New heading") {
		t.Errorf("body not replaced: %s", out)
	}
	if strings.Contains(out, "server copy") {
		t.Error("fetched element with preserved id was imported")
	}
	if !strings.Contains(out, "/_live/body.js") {
		t.Error("live preserved body element dropped")
	}

	body, _ := d.Body(ctx)
	children, _ := d.Children(ctx, body)
	last := children[len(children)-1]
	if last.ID() != ClientScriptID {
		t.Errorf("preserved element not last: <%s id=%q>", last.Tag(), last.ID())
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	d, fetched := setup(t)

	st, err := Apply(ctx, d, fetched)
	if err != nil {
		t.Fatal(err)
	}
	if !st.TitleSet {
		t.Error("title not set")
	}
	if got := dom.Title(d.Root()); !strings.HasPrefix(got, "New") {
		t.Errorf("title: got %q", got)
	}

	// Only the imported body script runs; both preserved scripts stay put.
	execs := d.Executed()
	if len(execs) != 1 || execs[0].Text != "window.y = 2" {
		t.Fatalf("executed: got %+v", execs)
	}
	if st.ScriptsRerun != 1 {
		t.Errorf("ScriptsRerun: got %d, want 1", st.ScriptsRerun)
	}
	for _, e := range execs {
		if IsPreserved(e.ID) {
			t.Errorf("preserved script %q executed", e.ID)
		}
	}
}

func TestApply_NoInertScriptsLeft(t *testing.T) {
	ctx := context.Background()
	d, fetched := setup(t)
	if _, err := Apply(ctx, d, fetched); err != nil {
		t.Fatal(err)
	}
	scripts, _ := d.QuerySelectorAll(ctx, nil, "script")
	for _, s := range scripts {
		if d.Inert(s) {
			t.Errorf("script id=%q left inert", s.ID())
		}
	}
}

func TestIsPreserved(t *testing.T) {
	for id, want := range map[string]bool{
		ConfigScriptID: true,
		ClientScriptID: true,
		"":             false,
		"app":          false,
	} {
		if got := IsPreserved(id); got != want {
			t.Errorf("IsPreserved(%q): got %v, want %v", id, got, want)
		}
	}
}

func TestReplaceBody_PreservedOrder(t *testing.T) {
	// WHAT: Live preserved elements are re-appended config first, then client,
	// whatever their order in the live body.
	// WHY: The body's final layout must not vary from one merge to the next.
	const live = `<html><head></head><body>
<script id="__web_dev_server_client" src="/_live/script.js"></script>
<p>old</p>
<script id="__web_dev_server_config">window.__WEB_DEV_SERVER_CONFIG__={}</script>
</body></html>`
	fetched, err := html.Parse(strings.NewReader(`<html><body><p>new</p></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for range 20 {
		d, err := dom.ParseMemory("http://localhost/", live)
		if err != nil {
			t.Fatal(err)
		}
		if _, kept, err := ReplaceBody(ctx, d, dom.FindFirst(fetched, atom.Body)); err != nil || kept != 2 {
			t.Fatalf("ReplaceBody: kept=%d err=%v", kept, err)
		}
		body, _ := d.Body(ctx)
		children, _ := d.Children(ctx, body)
		n := len(children)
		if n < 2 || children[n-2].ID() != ConfigScriptID || children[n-1].ID() != ClientScriptID {
			t.Fatalf("preserved order: %s", d.HTML())
		}
	}
}
