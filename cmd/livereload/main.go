// Command livereload keeps a Chrome tab in sync with a development server.
//
// Usage:
//
//	livereload -url http://localhost:8000/             # watch one page
//	livereload -url http://localhost:8000/ -diff       # patch HTML/CSS in place
//	livereload -config livereload.yaml -control :7070  # file config plus control API
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/devlive/livereload"
)

func main() {
	configPath := flag.String("config", "", "path to livereload.yaml config file")
	pageURL := flag.String("url", "", "page to open")
	wsPath := flag.String("ws-path", "", "notification socket path (default /_live/ws)")
	diff := flag.Bool("diff", false, "patch HTML and CSS in place instead of reloading")
	noPageConfig := flag.Bool("no-page-config", false, "ignore window.__WEB_DEV_SERVER_CONFIG__")
	remote := flag.String("remote", "", "DevTools URL of a running Chrome")
	headful := flag.Bool("headful", false, "show the Chrome window")
	controlAddr := flag.String("control", "", "control API listen address, e.g. 127.0.0.1:7070")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := livereload.LoadConfig(*configPath)
	if err != nil {
		logger.Error("livereload: fatal", "error", err)
		os.Exit(1)
	}

	// Only flags given on the command line override file and environment.
	// An explicit -ws-path or -diff also outranks the page's own config.
	pinned := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.URL = *pageURL
		case "ws-path":
			cfg.WSPath = *wsPath
			pinned = true
		case "diff":
			cfg.DiffMode = *diff
			pinned = true
		case "no-page-config":
			use := !*noPageConfig
			cfg.UsePageConfig = &use
		case "remote":
			cfg.Browser.Remote = *remote
		case "headful":
			if *headful {
				cfg.Browser.Mode = "headful"
			} else {
				cfg.Browser.Mode = "headless"
			}
		case "control":
			cfg.Control.Addr = *controlAddr
		}
	})
	if pinned {
		off := false
		cfg.UsePageConfig = &off
	}
	if cfg.URL == "" {
		fmt.Fprintln(os.Stderr, "usage: livereload -url <page> | -config <file>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("livereload: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *livereload.Config) error {
	s, err := livereload.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer s.Close()

	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logger.Info("livereload: stopped")
	return nil
}
