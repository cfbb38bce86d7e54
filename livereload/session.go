package livereload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/devlive/livereload/internal/browser"
	"github.com/hazyhaar/devlive/livereload/internal/config"
	"github.com/hazyhaar/devlive/livereload/internal/control"
	"github.com/hazyhaar/devlive/livereload/internal/sink"
)

type (
	// Config is the file, environment and flag configuration of a Session.
	Config = config.Config
	// SinkConfig defines one outcome sink.
	SinkConfig = config.SinkConfig
	// PageConfig is what a dev server injects as
	// window.__WEB_DEV_SERVER_CONFIG__.
	PageConfig = browser.PageConfig
)

// LoadConfig reads a YAML file (optional, "" skips it) and applies
// LIVERELOAD_* environment overrides. Validate after merging flags.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// BuildSinks constructs the configured outcome sinks. On error the sinks
// already built are closed.
func BuildSinks(cfgs []SinkConfig, logger *slog.Logger) ([]Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks []Sink
	for _, sc := range cfgs {
		switch sc.Type {
		case config.SinkStdout:
			sinks = append(sinks, sink.NewStdout(nil))
		case config.SinkWebhook:
			sinks = append(sinks, sink.NewWebhook(sc.URL, sink.WithWebhookLogger(logger)))
		case config.SinkSQLite:
			s, err := sink.OpenSQLite(sc.Path)
			if err != nil {
				closeAll(sinks)
				return nil, err
			}
			sinks = append(sinks, s)
		default:
			closeAll(sinks)
			return nil, fmt.Errorf("livereload: unknown sink type %q", sc.Type)
		}
	}
	return sinks, nil
}

func closeAll(sinks []Sink) {
	for _, s := range sinks {
		s.Close()
	}
}

// Session drives one Chrome tab: it opens the configured URL, binds a
// Client to it and optionally serves the control endpoints.
type Session struct {
	cfg    *Config
	logger *slog.Logger

	chrome *browser.Chrome
	tab    *browser.Tab
	client *Client
}

// Open launches or attaches to Chrome, opens cfg.URL and prepares the
// client. The page's injected configuration, when enabled and present,
// takes precedence over cfg.WSPath and cfg.DiffMode.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, logger: logger}

	chrome, err := browser.Connect(ctx, browser.Config{
		Remote:              cfg.Browser.Remote,
		Bin:                 cfg.Browser.Bin,
		Headless:            cfg.Browser.Headless(),
		Stealth:             cfg.Browser.Stealth,
		BlockInjectedClient: cfg.Browser.BlockInjected(),
		ResourceBlocking:    cfg.Browser.ResourceBlocking,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}
	s.chrome = chrome

	tab, err := chrome.OpenTab(ctx, cfg.URL)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.tab = tab

	ccfg := ClientConfig{NotificationPath: cfg.WSPath, PatchMode: cfg.DiffMode}
	if cfg.PageConfigEnabled() {
		pc, ok, err := tab.ReadPageConfig(ctx)
		switch {
		case err != nil:
			logger.Warn("livereload: page config unreadable", "error", err)
		case ok:
			ccfg = mergePageConfig(ccfg, pc)
			logger.Info("livereload: using page config", "ws_path", pc.WSPath, "diff_mode", pc.DiffMode)
		}
	}

	sinks, err := BuildSinks(cfg.Sinks, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.client, err = New(ctx, tab.Document(), ccfg, WithLogger(logger), WithSink(sinks...))
	if err != nil {
		closeAll(sinks)
		s.Close()
		return nil, err
	}
	return s, nil
}

func mergePageConfig(c ClientConfig, pc PageConfig) ClientConfig {
	if pc.WSPath != "" {
		c.NotificationPath = pc.WSPath
	}
	c.PatchMode = pc.DiffMode
	return c
}

// Client returns the session's client.
func (s *Session) Client() *Client { return s.client }

// Run runs the client, and the control server when configured, until ctx
// is cancelled or either fails.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.client.Run(gctx) })
	if addr := s.cfg.Control.Addr; addr != "" {
		srv := control.New(s.client, s.logger)
		g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
	}
	return g.Wait()
}

// Close releases the sinks, the tab and the browser.
func (s *Session) Close() error {
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	if s.tab != nil {
		errs = append(errs, s.tab.Close())
	}
	if s.chrome != nil {
		errs = append(errs, s.chrome.Close())
	}
	return errors.Join(errs...)
}
