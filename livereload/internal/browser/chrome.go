// Package browser runs the Chrome tab the live-reload client drives:
// launch or attach via Rod, open the page with request blocking applied,
// and expose the tab as a dom.Document.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Config selects and shapes the Chrome instance.
type Config struct {
	// Remote is the DevTools address of a Chrome that is already running:
	// a browser WebSocket URL, host:port or a bare port. Empty launches one.
	Remote string
	// Bin overrides the binary for a launched Chrome.
	Bin string
	// Headless hides a launched Chrome. Developers watching their page
	// usually want it visible.
	Headless bool
	// Stealth opens tabs through go-rod/stealth.
	Stealth bool
	// BlockInjectedClient fails requests for InjectedClientPath so the
	// page's own live-reload script never competes with this client.
	BlockInjectedClient bool
	// ResourceBlocking lists resource types to fail: images, fonts, media,
	// stylesheets, or any CDP resource type.
	ResourceBlocking []string

	Logger *slog.Logger
}

// Chrome is a connected browser. A launched process is owned and killed on
// Close; an attached one is left running.
type Chrome struct {
	Browser *rod.Browser

	cfg       Config
	lnch      *launcher.Launcher
	closeOnce sync.Once
	closeErr  error
}

// Connect launches Chrome, or attaches to cfg.Remote.
func Connect(ctx context.Context, cfg Config) (*Chrome, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Chrome{cfg: cfg}

	controlURL, err := c.controlURL(ctx)
	if err != nil {
		return nil, err
	}

	b := rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		c.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	// Detach from the dial context; Close ends the session.
	c.Browser = b.Context(context.Background())

	// Dev servers often run on self-signed certificates.
	if err := c.Browser.IgnoreCertErrors(true); err != nil {
		cfg.Logger.Warn("browser: ignore cert errors failed", "error", err)
	}
	return c, nil
}

func (c *Chrome) controlURL(ctx context.Context) (string, error) {
	log := c.cfg.Logger
	if c.cfg.Remote != "" {
		u, err := launcher.ResolveURL(c.cfg.Remote)
		if err != nil {
			return "", fmt.Errorf("browser: resolve %s: %w", c.cfg.Remote, err)
		}
		log.Info("browser: attaching", "url", u)
		return u, nil
	}

	l := launcher.New().Context(ctx).
		Headless(c.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if c.cfg.Bin != "" {
		l = l.Bin(c.cfg.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return "", fmt.Errorf("browser: launch: %w", err)
	}
	c.lnch = l
	log.Info("browser: launched", "url", u, "headless", c.cfg.Headless)
	return u, nil
}

// Close ends the session. Safe to call more than once.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		if c.lnch == nil {
			// Attached: drop our connection, keep the developer's Chrome.
			return
		}
		if c.Browser != nil {
			c.closeErr = c.Browser.Close()
		}
		c.lnch.Kill()
		c.lnch.Cleanup()
	})
	return c.closeErr
}

var errNoBrowser = errors.New("browser: not connected")
