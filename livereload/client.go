// Package livereload keeps a page in sync with a development server. A
// Client listens on the server's notification socket and, for each change
// notification, reloads the page, merges the refetched HTML into it, or
// refreshes its stylesheets.
//
// The page is reached through a Document: a Chrome tab in cmd/livereload,
// or the in-memory model returned by NewMemoryDocument.
//
//	doc, _ := livereload.NewMemoryDocument("http://localhost:8000/", markup)
//	c, err := livereload.New(ctx, doc, livereload.ClientConfig{PatchMode: true})
//	if err != nil { ... }
//	defer c.Close()
//	c.Run(ctx)
package livereload

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hazyhaar/devlive/idgen"
	"github.com/hazyhaar/devlive/livereload/internal/conn"
	"github.com/hazyhaar/devlive/livereload/internal/control"
	"github.com/hazyhaar/devlive/livereload/internal/dispatch"
	"github.com/hazyhaar/devlive/livereload/internal/dom"
	"github.com/hazyhaar/devlive/livereload/internal/fetcher"
	"github.com/hazyhaar/devlive/livereload/internal/patch"
	"github.com/hazyhaar/devlive/livereload/internal/sink"
	"github.com/hazyhaar/devlive/livereload/notify"
)

// DefaultNotificationPath is the socket path dev servers listen on.
const DefaultNotificationPath = "/_live/ws"

// ClientConfig is the behaviour a dev server would otherwise inject into
// the page.
type ClientConfig struct {
	// NotificationPath is the socket path on the page's host. Default
	// DefaultNotificationPath.
	NotificationPath string
	// PatchMode enables in-place HTML and CSS patching. When false every
	// notification becomes a full reload.
	PatchMode bool
}

type (
	// Document is the page the client mutates.
	Document = dom.Document
	// MemoryDocument is an in-memory Document.
	MemoryDocument = dom.Memory
	// Sink receives one notify.Outcome per handled notification.
	Sink = sink.Sink
	// Dialer opens the notification socket.
	Dialer = conn.Dialer
	// Status is the snapshot reported by Client.Status.
	Status = control.Status
)

// NewMemoryDocument parses markup as the page displayed at location.
func NewMemoryDocument(location, markup string) (*MemoryDocument, error) {
	return dom.ParseMemory(location, markup)
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	sinks      []sink.Sink
	dialer     conn.Dialer
	httpClient *http.Client
	newID      idgen.Generator
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSink adds outcome sinks. The Client closes them on Close.
func WithSink(s ...Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

// WithOutcomeFunc adds an in-process outcome callback.
func WithOutcomeFunc(fn func(ctx context.Context, o notify.Outcome)) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, sink.NewCallback(func(ctx context.Context, out notify.Outcome) error {
			fn(ctx, out)
			return nil
		}))
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithHTTPClient sets the client used to refetch pages for HTML patches.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithIDGenerator sets the outcome id generator. Default UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(o *options) { o.newID = g }
}

// Client is a live-reload client bound to one document.
type Client struct {
	cfg      ClientConfig
	endpoint string
	logger   *slog.Logger

	applier *patch.Applier
	disp    *dispatch.Dispatcher
	conn    *conn.Manager
	sinks   *sink.Router

	wg sync.WaitGroup

	mu       sync.Mutex
	outcomes map[notify.Action]uint64
}

// New binds a Client to doc. The notification endpoint is derived from the
// document's current location.
func New(ctx context.Context, doc Document, cfg ClientConfig, opts ...Option) (*Client, error) {
	if doc == nil {
		return nil, fmt.Errorf("livereload: nil document")
	}
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg.NotificationPath == "" {
		cfg.NotificationPath = DefaultNotificationPath
	}

	loc, err := doc.Location(ctx)
	if err != nil {
		return nil, fmt.Errorf("livereload: location: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		endpoint: conn.Endpoint(loc, cfg.NotificationPath),
		logger:   o.logger,
		sinks:    sink.NewRouter(o.logger, o.sinks...),
		outcomes: make(map[notify.Action]uint64),
	}

	fopts := []fetcher.Option{fetcher.WithLogger(o.logger)}
	if o.httpClient != nil {
		fopts = append(fopts, fetcher.WithClient(o.httpClient))
	}
	c.applier = patch.New(patch.Config{
		Document: doc,
		Fetcher:  fetcher.New(fopts...),
		Logger:   o.logger,
	})
	c.disp = dispatch.New(dispatch.Config{
		Applier:   c.applier,
		Locator:   doc,
		PatchMode: cfg.PatchMode,
		Emit:      c.emit,
		NewID:     o.newID,
		Logger:    o.logger,
	})
	c.conn = conn.New(conn.Config{
		URL:     c.endpoint,
		Handler: c.handle,
		Dialer:  o.dialer,
		Logger:  o.logger,
		OnState: func(s conn.State) { o.logger.Debug("livereload: state", "state", s) },
	})
	return c, nil
}

// Endpoint returns the notification socket URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Run listens for notifications until ctx is cancelled, then waits for
// in-flight notifications to finish.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("livereload: running",
		"endpoint", c.endpoint, "patch_mode", c.cfg.PatchMode, "sinks", c.sinks.Len())
	err := c.conn.Run(ctx)
	c.wg.Wait()
	return err
}

// handle dispatches each frame on its own goroutine so a newer HTML diff
// can supersede a fetch still in flight. The sequence number is taken here,
// on the read loop, so precedence follows arrival order rather than
// goroutine scheduling.
func (c *Client) handle(ctx context.Context, v any) {
	ctx = patch.WithSequence(ctx, c.applier.Sequence())
	c.wg.Go(func() { c.disp.Dispatch(ctx, v) })
}

func (c *Client) emit(ctx context.Context, o notify.Outcome) {
	c.mu.Lock()
	c.outcomes[o.Action]++
	c.mu.Unlock()

	c.logger.Info("livereload: outcome",
		"action", o.Action, "trigger", o.Trigger, "resource", o.Resource,
		"path", o.Path, "reason", o.Reason)
	// The router logs failing sinks; one failure must not stall the page.
	_ = c.sinks.Send(context.WithoutCancel(ctx), o)
}

// Reload forces a full reload of the page.
func (c *Client) Reload(ctx context.Context) error {
	return c.applier.Reload(ctx)
}

// Status reports connection counters and outcomes per action.
func (c *Client) Status() Status {
	st := c.conn.Stats()
	c.mu.Lock()
	outcomes := make(map[string]uint64, len(c.outcomes))
	for a, n := range c.outcomes {
		outcomes[string(a)] = n
	}
	c.mu.Unlock()

	return Status{
		State:        st.State.String(),
		RetryDelayMs: st.RetryDelay.Milliseconds(),
		Endpoint:     c.endpoint,
		PatchMode:    c.cfg.PatchMode,
		Connects:     st.Connects,
		Failures:     st.Failures,
		Frames:       st.Frames,
		Malformed:    st.Malformed,
		Outcomes:     outcomes,
	}
}

// Close closes the sinks. Call it after Run returns.
func (c *Client) Close() error {
	return c.sinks.Close()
}

var _ control.Backend = (*Client)(nil)
