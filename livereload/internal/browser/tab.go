package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// NavigateTimeout bounds the initial page load of OpenTab.
const NavigateTimeout = 30 * time.Second

// Tab is the page under live reload.
type Tab struct {
	Page    *rod.Page
	PageURL string

	router *rod.HijackRouter
	doc    *Document
}

// OpenTab creates a tab with blocking applied, then navigates to pageURL and
// waits for it to load.
func (c *Chrome) OpenTab(ctx context.Context, pageURL string) (*Tab, error) {
	b := c.Browser
	if b == nil {
		return nil, errNoBrowser
	}

	var page *rod.Page
	var err error
	if c.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, PageURL: pageURL}

	// Blocking must be in place before the first navigation, or the page's
	// injected client is already running.
	if bl := newBlocker(c.cfg.BlockInjectedClient, c.cfg.ResourceBlocking); bl.active() {
		t.router = applyBlocking(page, bl)
	}

	navCtx, cancel := context.WithTimeout(ctx, NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		c.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	t.doc = NewDocument(page)
	return t, nil
}

// Document returns the tab as a dom.Document.
func (t *Tab) Document() *Document { return t.doc }

// PageConfig is the configuration a dev server injects into the page as
// window.__WEB_DEV_SERVER_CONFIG__.
type PageConfig struct {
	WSPath   string `json:"wsPath"`
	DiffMode bool   `json:"diffMode"`
}

const pageConfigJS = `() => JSON.stringify(window.__WEB_DEV_SERVER_CONFIG__ || null)`

// ReadPageConfig reads the injected configuration. ok is false when the
// page carries none.
func (t *Tab) ReadPageConfig(ctx context.Context) (cfg PageConfig, ok bool, err error) {
	res, err := t.Page.Context(ctx).Eval(pageConfigJS)
	if err != nil {
		return PageConfig{}, false, fmt.Errorf("browser: read page config: %w", err)
	}
	return decodePageConfig(res.Value.Str())
}

func decodePageConfig(raw string) (PageConfig, bool, error) {
	if raw == "" || raw == "null" {
		return PageConfig{}, false, nil
	}
	var cfg PageConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return PageConfig{}, false, fmt.Errorf("browser: decode page config: %w", err)
	}
	return cfg, true, nil
}

// Close stops request blocking and closes the tab.
func (t *Tab) Close() error {
	if t.router != nil {
		t.router.Stop()
		t.router = nil
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
