// Package dispatch routes decoded notifications to the patch applier and
// reports what was done.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/hazyhaar/devlive/idgen"
	"github.com/hazyhaar/devlive/livereload/internal/patch"
	"github.com/hazyhaar/devlive/livereload/internal/urlpath"
	"github.com/hazyhaar/devlive/livereload/notify"
)

// Applier is the subset of *patch.Applier the dispatcher drives.
type Applier interface {
	Reload(ctx context.Context) error
	ApplyHTML(ctx context.Context, path string) (notify.Action, error)
	ApplyCSS(ctx context.Context, path string) (notify.Action, error)
}

// Locator reports the current page location.
type Locator interface {
	Location(ctx context.Context) (*url.URL, error)
}

// Emitter receives one outcome per dispatched notification.
type Emitter func(ctx context.Context, o notify.Outcome)

// Config configures a Dispatcher. Applier and Locator are required.
type Config struct {
	Applier   Applier
	Locator   Locator
	PatchMode bool
	Emit      Emitter
	NewID     idgen.Generator // default idgen.Default
	Now       func() time.Time
	Logger    *slog.Logger
}

// Dispatcher decides, per notification, between a full reload, an HTML
// patch, a CSS patch, a skip or nothing.
type Dispatcher struct {
	cfg Config
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Default
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{cfg: cfg}
}

// Dispatch handles one parsed frame. v is the generic JSON value decoded
// from the frame. Values that are not an object with a string "type" are
// ignored without emitting an outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, v any) notify.Action {
	n, ok := notify.FromValue(v)
	if !ok {
		d.cfg.Logger.Debug("dispatch: not a notification")
		return notify.ActionIgnore
	}

	action, reason := d.route(ctx, n)
	if action == notify.ActionIgnore {
		return action
	}

	o := notify.Outcome{
		ID:        d.cfg.NewID(),
		Action:    action,
		Trigger:   n.Type,
		Resource:  n.Resource,
		Path:      n.Path,
		Reason:    reason,
		Timestamp: d.cfg.Now().UnixMilli(),
	}
	if d.cfg.Emit != nil {
		d.cfg.Emit(ctx, o)
	}
	return action
}

func (d *Dispatcher) route(ctx context.Context, n notify.Notification) (notify.Action, string) {
	switch n.Type {
	case notify.TypeReload:
		return d.reload(ctx, "reload requested")

	case notify.TypeDiff:
		if !d.cfg.PatchMode {
			return d.reload(ctx, "patch mode off")
		}
		switch n.Resource {
		case notify.ResourceHTML:
			if n.Path == "" {
				return d.reload(ctx, patch.ReasonMissingPath)
			}
			loc, err := d.cfg.Locator.Location(ctx)
			if err != nil {
				d.cfg.Logger.Warn("dispatch: location", "error", err)
				return d.reload(ctx, "location unavailable")
			}
			target, current := urlpath.Normalize(loc, n.Path), urlpath.Normalize(loc, loc.EscapedPath())
			if target != current {
				d.cfg.Logger.Debug("dispatch: html diff for another page",
					"path", target, "current", current)
				return notify.ActionSkip, "path mismatch"
			}
			return d.result(d.cfg.Applier.ApplyHTML(ctx, n.Path))

		case notify.ResourceCSS:
			return d.result(d.cfg.Applier.ApplyCSS(ctx, n.Path))

		default:
			return d.reload(ctx, "unpatchable resource")
		}

	default:
		d.cfg.Logger.Debug("dispatch: unknown notification type", "type", n.Type)
		return notify.ActionIgnore, ""
	}
}

func (d *Dispatcher) reload(ctx context.Context, reason string) (notify.Action, string) {
	if err := d.cfg.Applier.Reload(ctx); err != nil {
		d.cfg.Logger.Warn("dispatch: reload", "error", err)
		return notify.ActionReload, reason + ": " + err.Error()
	}
	return notify.ActionReload, reason
}

func (d *Dispatcher) result(action notify.Action, err error) (notify.Action, string) {
	if err == nil {
		return action, ""
	}
	var fb *patch.ErrFallback
	switch {
	case errors.As(err, &fb):
		return action, fb.Reason
	case errors.Is(err, patch.ErrSuperseded):
		return notify.ActionSkip, "superseded"
	default:
		d.cfg.Logger.Warn("dispatch: patch", "error", err)
		if action == "" {
			action = notify.ActionIgnore
		}
		return action, err.Error()
	}
}
