package conn

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hazyhaar/devlive/livereload/notify"
)

// Conn is the read side of a notification socket.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens notification sockets.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Conn, error) { return f(ctx, endpoint) }

// WebsocketDialer dials with github.com/coder/websocket.
type WebsocketDialer struct {
	Options   *websocket.DialOptions
	ReadLimit int64 // 0 keeps the library default
}

func (d WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	c, resp, err := websocket.Dial(ctx, endpoint, d.Options)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return c, nil
}

// Endpoint builds the socket URL for a page: wss for https pages, ws for
// anything else, same host, the given path.
func Endpoint(location *url.URL, path string) string {
	scheme := "ws"
	if location.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: location.Host}
	p, err := url.Parse(path)
	if err != nil {
		u.Path = path
	} else {
		u.Path, u.RawPath, u.RawQuery = p.Path, p.RawPath, p.RawQuery
	}
	return u.String()
}

// Handler receives the generic JSON value of every well-formed frame.
type Handler func(ctx context.Context, v any)

// Config configures a Manager. URL and Handler are required.
type Config struct {
	URL     string
	Handler Handler
	Dialer  Dialer // default WebsocketDialer{}
	// After schedules retries; default time.After.
	After   func(d time.Duration) <-chan time.Time
	Logger  *slog.Logger
	// OnState, if set, is called after every state change.
	OnState func(State)
}

// Stats is a snapshot of a Manager's counters.
type Stats struct {
	State      State
	RetryDelay time.Duration
	Connects   uint64
	Failures   uint64
	Frames     uint64
	Malformed  uint64
}

// Manager runs the connect/read/reconnect loop. Only one socket is open at
// a time; the next dial starts after the previous socket is closed.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	machine *Machine
	stats   Stats
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg, machine: NewMachine()}
}

// Stats returns a snapshot of the counters and current state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.State = m.machine.State()
	s.RetryDelay = m.machine.Delay()
	return s
}

// Run connects and keeps reconnecting until ctx is cancelled. Transport
// failures are logged and retried; Run returns nil once ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.URL == "" || m.cfg.Handler == nil {
		return errors.New("conn: URL and Handler are required")
	}

	for {
		c, err := m.cfg.Dialer.Dial(ctx, m.cfg.URL)
		if ctx.Err() != nil {
			if c != nil {
				c.Close(websocket.StatusGoingAway, "")
			}
			return nil
		}

		if err != nil {
			m.count(func(s *Stats) { s.Failures++ })
			m.cfg.Logger.Warn("conn: dial failed", "url", m.cfg.URL, "error", err)
			if !m.retry(ctx, ErrorObserved) {
				return nil
			}
			continue
		}

		m.fire(OpenSucceeded)
		m.count(func(s *Stats) { s.Connects++ })
		m.cfg.Logger.Info("conn: open", "url", m.cfg.URL)

		err = m.read(ctx, c)
		c.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return nil
		}

		trigger := ErrorObserved
		if websocket.CloseStatus(err) != -1 {
			trigger = CloseObserved
		}
		m.cfg.Logger.Info("conn: closed", "url", m.cfg.URL, "trigger", trigger, "error", err)
		if !m.retry(ctx, trigger) {
			return nil
		}
	}
}

// read consumes frames until the socket fails.
func (m *Manager) read(ctx context.Context, c Conn) error {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return err
		}
		m.fire(FrameReceived)
		m.count(func(s *Stats) { s.Frames++ })

		v, err := notify.Decode(data)
		if err != nil {
			m.count(func(s *Stats) { s.Malformed++ })
			m.cfg.Logger.Warn("conn: malformed frame", "error", err, "size", len(data))
			continue
		}
		m.cfg.Handler(ctx, v)
	}
}

// retry moves to ClosedPendingRetry, sleeps the scheduled delay, then back
// to Connecting. It reports false if ctx ended first.
func (m *Manager) retry(ctx context.Context, trigger Trigger) bool {
	wait := m.fire(trigger)
	m.cfg.Logger.Debug("conn: retry scheduled", "in", wait)
	select {
	case <-ctx.Done():
		return false
	case <-m.cfg.After(wait):
	}
	m.fire(RetryTimerFired)
	return true
}

func (m *Manager) fire(t Trigger) time.Duration {
	m.mu.Lock()
	before := m.machine.State()
	wait, err := m.machine.Fire(t)
	after := m.machine.State()
	m.mu.Unlock()

	if err != nil {
		m.cfg.Logger.Error("conn: state machine", "error", err)
		return wait
	}
	if before != after && m.cfg.OnState != nil {
		m.cfg.OnState(after)
	}
	return wait
}

func (m *Manager) count(f func(*Stats)) {
	m.mu.Lock()
	f(&m.stats)
	m.mu.Unlock()
}
