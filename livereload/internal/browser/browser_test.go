package browser

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/hazyhaar/devlive/livereload/internal/dom"
)

func TestBlocker(t *testing.T) {
	b := newBlocker(true, []string{"Images", "font"})
	cases := []struct {
		rawURL  string
		resType string
		want    bool
	}{
		{"http://localhost:8000/_live/script.js", "Script", true},
		{"http://localhost:8000/_live/script.js?v=3", "Script", true},
		{"http://localhost:8000/app.js", "Script", false},
		{"http://localhost:8000/logo.png", "Image", true},
		{"http://localhost:8000/inter.woff2", "Font", true},
		{"http://localhost:8000/app.css", "Stylesheet", false},
		{"http://localhost:8000/", "Document", false},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.rawURL)
		if err != nil {
			t.Fatal(err)
		}
		if got := b.shouldBlock(u, tc.resType); got != tc.want {
			t.Errorf("shouldBlock(%s, %s): got %v, want %v", tc.rawURL, tc.resType, got, tc.want)
		}
	}
}

func TestBlocker_InjectedOff(t *testing.T) {
	b := newBlocker(false, nil)
	if b.active() {
		t.Error("blocker with nothing to block should be inactive")
	}
	u, _ := url.Parse("http://localhost:8000/_live/script.js")
	if b.shouldBlock(u, "Script") {
		t.Error("injected client blocked while disabled")
	}
}

func TestDecodePageConfig(t *testing.T) {
	cfg, ok, err := decodePageConfig(`{"wsPath":"/_live/ws","diffMode":true}`)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if cfg.WSPath != "/_live/ws" || !cfg.DiffMode {
		t.Errorf("decoded: %+v", cfg)
	}

	for _, raw := range []string{"", "null"} {
		if _, ok, err := decodePageConfig(raw); ok || err != nil {
			t.Errorf("decode(%q): ok=%v err=%v", raw, ok, err)
		}
	}

	if _, _, err := decodePageConfig(`{"wsPath":`); err == nil {
		t.Error("truncated config should fail")
	}
}

func TestOpenTab_NotConnected(t *testing.T) {
	c := &Chrome{}
	if _, err := c.OpenTab(context.Background(), "http://localhost:8000/"); !errors.Is(err, errNoBrowser) {
		t.Fatalf("OpenTab: got %v, want errNoBrowser", err)
	}
}

func TestConnect_UnreachableRemote(t *testing.T) {
	// Port 1 refuses connections, so resolving the DevTools URL fails fast.
	_, err := Connect(context.Background(), Config{Remote: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestChrome_CloseAttachedIsNoop(t *testing.T) {
	c := &Chrome{}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDocument_ForeignNode(t *testing.T) {
	d := NewDocument(nil)
	mem, err := dom.ParseMemory("http://localhost/", "<html><body></body></html>")
	if err != nil {
		t.Fatal(err)
	}
	body, err := mem.Body(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetAttribute(context.Background(), body, "class", "x"); !errors.Is(err, dom.ErrForeignNode) {
		t.Errorf("SetAttribute on memory node: got %v", err)
	}
	other := &rodNode{doc: NewDocument(nil)}
	if err := d.ReactivateScript(context.Background(), other); !errors.Is(err, dom.ErrForeignNode) {
		t.Errorf("ReactivateScript on other document's node: got %v", err)
	}
}
