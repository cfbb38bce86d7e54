package patch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
	"github.com/hazyhaar/devlive/livereload/internal/urlpath"
	"github.com/hazyhaar/devlive/livereload/notify"
)

const livePage = `<!DOCTYPE html>
<html>
<head>
<title>Old</title>
<link rel="stylesheet" href="/styles/app.css">
<link rel="preload stylesheet" href="../styles/app.css?x=1">
<link rel="icon" href="/styles/app.css">
<script id="__web_dev_server_client" src="/_live/script.js"></script>
</head>
<body><h1>Old</h1><div id="counter">3</div></body>
</html>`

func fixedClock() *urlpath.Freshness {
	return urlpath.NewFreshness(func() time.Time { return time.UnixMilli(1700000000000) })
}

func newApplier(t *testing.T, base string) (*Applier, *dom.Memory) {
	t.Helper()
	d, err := dom.ParseMemory(base+"/about/", livePage)
	if err != nil {
		t.Fatal(err)
	}
	return New(Config{Document: d, Freshness: fixedClock()}), d
}

func TestReload(t *testing.T) {
	a, d := newApplier(t, "http://localhost:8000")
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	navs := d.Navigations()
	want := "http://localhost:8000/about/?_v=1700000000000"
	if len(navs) != 1 || navs[0] != want {
		t.Errorf("navigations: got %v, want [%s]", navs, want)
	}
}

func TestApplyHTML_Success(t *testing.T) {
	// WHAT: A matching html diff merges the fresh page in place.
	// WHY: Runtime state outside body/head survives the edit.
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get(urlpath.FreshnessParam)
		w.Write([]byte(`<html><head><title>New</title></head><body><h1>New</h1><script>boot()</script></body></html>`))
	}))
	defer srv.Close()

	a, d := newApplier(t, srv.URL)
	action, err := a.ApplyHTML(context.Background(), "/about/")
	if err != nil {
		t.Fatalf("ApplyHTML: %v", err)
	}
	if action != notify.ActionPatchHTML {
		t.Errorf("action: got %s", action)
	}
	if gotQuery != "1700000000000" {
		t.Errorf("freshness token: got %q", gotQuery)
	}
	if len(d.Navigations()) != 0 {
		t.Errorf("unexpected reload: %v", d.Navigations())
	}
	out := d.HTML()
	if !strings.Contains(out, "<h1>New</h1>") || strings.Contains(out, "<h1>Old</h1>") {
		t.Errorf("body not replaced: %s", out)
	}
	if got := dom.Title(d.Root()); got != "New" {
		t.Errorf("title: got %q", got)
	}
	if execs := d.Executed(); len(execs) != 1 || execs[0].Text != "boot()" {
		t.Errorf("executed: got %+v", execs)
	}
	if !strings.Contains(out, "/_live/script.js") {
		t.Error("preserved client script removed")
	}
}

func TestApplyHTML_Fallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing/":
			http.NotFound(w, r)
		case "/empty/":
		}
	}))
	defer srv.Close()

	cases := []struct {
		name   string
		path   string
		reason string
	}{
		{"no path", "", ReasonMissingPath},
		{"404", "/missing/", ReasonFetch},
		{"empty body", "/empty/", ReasonFetch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, d := newApplier(t, srv.URL)
			action, err := a.ApplyHTML(context.Background(), tc.path)
			if action != notify.ActionReload {
				t.Errorf("action: got %s, want reload", action)
			}
			var fb *ErrFallback
			if !errors.As(err, &fb) || fb.Reason != tc.reason {
				t.Fatalf("err: got %v, want fallback %q", err, tc.reason)
			}
			if len(d.Navigations()) != 1 {
				t.Errorf("navigations: got %v", d.Navigations())
			}
			if !strings.Contains(d.HTML(), "<h1>Old</h1>") {
				t.Error("dom mutated on fallback")
			}
		})
	}
}

func TestApplyHTML_Superseded(t *testing.T) {
	// WHAT: A slow fetch overtaken by a newer diff never commits.
	// WHY: The latest notification must win regardless of fetch timing.
	arrived := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow/" {
			close(arrived)
			<-r.Context().Done()
			return
		}
		w.Write([]byte(`<html><body><h1>Fast</h1></body></html>`))
	}))
	defer srv.Close()

	a, d := newApplier(t, srv.URL)
	ctx := context.Background()

	type result struct {
		action notify.Action
		err    error
	}
	slow := make(chan result, 1)
	go func() {
		action, err := a.ApplyHTML(ctx, "/slow/")
		slow <- result{action, err}
	}()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("slow request never reached the server")
	}

	if action, err := a.ApplyHTML(ctx, "/fast/"); err != nil || action != notify.ActionPatchHTML {
		t.Fatalf("fast: action=%s err=%v", action, err)
	}

	select {
	case r := <-slow:
		if !errors.Is(r.err, ErrSuperseded) || r.action != notify.ActionSkip {
			t.Errorf("slow: action=%s err=%v", r.action, r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("slow request not cancelled")
	}

	if !strings.Contains(d.HTML(), "<h1>Fast</h1>") {
		t.Errorf("latest diff not applied: %s", d.HTML())
	}
	if len(d.Navigations()) != 0 {
		t.Errorf("unexpected reload: %v", d.Navigations())
	}
}

func TestApplyCSS_RewritesMatchingLinks(t *testing.T) {
	a, d := newApplier(t, "http://localhost:8000")
	ctx := context.Background()

	action, err := a.ApplyCSS(ctx, "/styles/app.css")
	if err != nil {
		t.Fatal(err)
	}
	if action != notify.ActionPatchCSS {
		t.Errorf("action: got %s", action)
	}

	links, _ := d.QuerySelectorAll(ctx, nil, "link")
	for i, want := range []string{
		"http://localhost:8000/styles/app.css?_v=1700000000000",
		"http://localhost:8000/styles/app.css?_v=1700000000000&x=1",
	} {
		if href, _ := links[i].Attr("href"); href != want {
			t.Errorf("link %d href: got %q, want %q", i, href, want)
		}
	}
	if href, _ := links[2].Attr("href"); href != "/styles/app.css" {
		t.Errorf("icon link touched: %q", href)
	}
	if len(d.Navigations()) != 0 {
		t.Errorf("unexpected reload: %v", d.Navigations())
	}

	// Already cache-busted hrefs still match by pathname.
	if action, err := a.ApplyCSS(ctx, "styles/app.css"); err != nil || action != notify.ActionPatchCSS {
		t.Errorf("second patch: action=%s err=%v", action, err)
	}
}

func TestApplyCSS_NoMatchReloads(t *testing.T) {
	a, d := newApplier(t, "http://localhost:8000")
	action, err := a.ApplyCSS(context.Background(), "/styles/other.css")
	var fb *ErrFallback
	if !errors.As(err, &fb) || fb.Reason != ReasonNoStyle {
		t.Fatalf("err: got %v", err)
	}
	if action != notify.ActionReload || len(d.Navigations()) != 1 {
		t.Errorf("action=%s navigations=%v", action, d.Navigations())
	}
}

func TestApplyCSS_MissingPath(t *testing.T) {
	a, d := newApplier(t, "http://localhost:8000")
	action, err := a.ApplyCSS(context.Background(), "")
	var fb *ErrFallback
	if !errors.As(err, &fb) || fb.Reason != ReasonMissingPath {
		t.Fatalf("err: got %v", err)
	}
	if action != notify.ActionReload || len(d.Navigations()) != 1 {
		t.Errorf("action=%s navigations=%v", action, d.Navigations())
	}
}

func TestApplyCSS_KeepsLinkQueryAndFragment(t *testing.T) {
	d, err := dom.ParseMemory("http://localhost:8000/",
		`<html><head><link rel="stylesheet" href="/styles/app.css?theme=dark&_v=1#x"></head><body></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	a := New(Config{Document: d, Freshness: fixedClock()})
	ctx := context.Background()

	if action, err := a.ApplyCSS(ctx, "/styles/app.css"); err != nil || action != notify.ActionPatchCSS {
		t.Fatalf("action=%s err=%v", action, err)
	}
	links, _ := d.QuerySelectorAll(ctx, nil, "link")
	want := "http://localhost:8000/styles/app.css?_v=1700000000000&theme=dark#x"
	if href, _ := links[0].Attr("href"); href != want {
		t.Errorf("href: got %q, want %q", href, want)
	}
}

// brokenQuery is a document whose queries fail.
type brokenQuery struct {
	*dom.Memory
}

func (brokenQuery) QuerySelectorAll(context.Context, dom.Node, string) ([]dom.Node, error) {
	return nil, errors.New("target closed")
}

func TestApplyCSS_QueryFailureReloads(t *testing.T) {
	d, err := dom.ParseMemory("http://localhost:8000/about/", livePage)
	if err != nil {
		t.Fatal(err)
	}
	a := New(Config{Document: brokenQuery{d}, Freshness: fixedClock()})

	action, err := a.ApplyCSS(context.Background(), "/styles/app.css")
	var fb *ErrFallback
	if !errors.As(err, &fb) || fb.Reason != ReasonDocument {
		t.Fatalf("err: got %v", err)
	}
	if action != notify.ActionReload || len(d.Navigations()) != 1 {
		t.Errorf("action=%s navigations=%v", action, d.Navigations())
	}
}

func TestApplyHTML_OlderSequenceSkipped(t *testing.T) {
	// WHAT: A diff numbered before one that already started never fetches.
	// WHY: Precedence follows arrival order, not which goroutine ran first.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`<html><body><h1>` + r.URL.Path + `</h1></body></html>`))
	}))
	defer srv.Close()

	a, d := newApplier(t, srv.URL)
	first, second := a.Sequence(), a.Sequence()
	ctx := context.Background()

	if action, err := a.ApplyHTML(WithSequence(ctx, second), "/second/"); err != nil || action != notify.ActionPatchHTML {
		t.Fatalf("second: action=%s err=%v", action, err)
	}
	action, err := a.ApplyHTML(WithSequence(ctx, first), "/first/")
	if !errors.Is(err, ErrSuperseded) || action != notify.ActionSkip {
		t.Fatalf("first: action=%s err=%v", action, err)
	}
	if hits.Load() != 1 {
		t.Errorf("fetches: got %d, want 1", hits.Load())
	}
	if !strings.Contains(d.HTML(), "<h1>/second/</h1>") {
		t.Errorf("document: %s", d.HTML())
	}
}

func TestReload_SupersedesOlderDiff(t *testing.T) {
	a, d := newApplier(t, "http://localhost:8000")
	diff, reload := a.Sequence(), a.Sequence()
	ctx := context.Background()

	if err := a.Reload(WithSequence(ctx, reload)); err != nil {
		t.Fatal(err)
	}
	action, err := a.ApplyHTML(WithSequence(ctx, diff), "/about/")
	if !errors.Is(err, ErrSuperseded) || action != notify.ActionSkip {
		t.Fatalf("diff after reload: action=%s err=%v", action, err)
	}
	if len(d.Navigations()) != 1 {
		t.Errorf("navigations: %v", d.Navigations())
	}
}
