// Package config handles live-reload configuration from a YAML file,
// overridden by LIVERELOAD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultWSPath is the notification endpoint path when none is configured.
const DefaultWSPath = "/_live/ws"

// Config is the top-level configuration.
type Config struct {
	URL           string        `yaml:"url"`
	WSPath        string        `yaml:"ws_path"`
	DiffMode      bool          `yaml:"diff_mode"`
	UsePageConfig *bool         `yaml:"use_page_config"` // default true
	Browser       BrowserConfig `yaml:"browser"`
	Control       ControlConfig `yaml:"control"`
	Sinks         []SinkConfig  `yaml:"sinks"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote              string   `yaml:"remote"` // DevTools URL; empty launches a local Chrome
	Bin                 string   `yaml:"bin"`
	Mode                string   `yaml:"mode"` // headless | headful
	Stealth             bool     `yaml:"stealth"`
	BlockInjectedClient *bool    `yaml:"block_injected_client"` // default true
	ResourceBlocking    []string `yaml:"resource_blocking"`
}

// ControlConfig configures the control HTTP surface. An empty Addr
// disables it.
type ControlConfig struct {
	Addr string `yaml:"addr"`
}

// SinkConfig defines an outcome backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // for webhook
	Path string `yaml:"path"` // for sqlite
}

// Sink types.
const (
	SinkStdout  = "stdout"
	SinkWebhook = "webhook"
	SinkSQLite  = "sqlite"
)

// Browser modes.
const (
	ModeHeadless = "headless"
	ModeHeadful  = "headful"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path (if non-empty) and applies environment overrides.
// Callers run Validate once flags are merged in.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WSPath == "" {
		c.WSPath = DefaultWSPath
	}
	if c.UsePageConfig == nil {
		c.UsePageConfig = boolPtr(true)
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = ModeHeadless
	}
	if c.Browser.BlockInjectedClient == nil {
		c.Browser.BlockInjectedClient = boolPtr(true)
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: SinkStdout}}
	}
}

// PageConfigEnabled reports whether the page-injected configuration is
// consulted.
func (c *Config) PageConfigEnabled() bool {
	return c.UsePageConfig == nil || *c.UsePageConfig
}

// BlockInjected reports whether the page's own live-reload script is
// blocked.
func (b BrowserConfig) BlockInjected() bool {
	return b.BlockInjectedClient == nil || *b.BlockInjectedClient
}

// Headless reports whether Chrome runs without a window.
func (b BrowserConfig) Headless() bool { return b.Mode != ModeHeadful }

// env mirrors the overridable fields. Strings distinguish unset from zero.
type env struct {
	URL           string `envconfig:"URL"`
	WSPath        string `envconfig:"WS_PATH"`
	DiffMode      string `envconfig:"DIFF_MODE"`
	ControlAddr   string `envconfig:"CONTROL_ADDR"`
	BrowserRemote string `envconfig:"BROWSER_REMOTE"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIVERELOAD"

// ApplyEnv overrides fields from LIVERELOAD_URL, LIVERELOAD_WS_PATH,
// LIVERELOAD_DIFF_MODE, LIVERELOAD_CONTROL_ADDR and LIVERELOAD_BROWSER_REMOTE.
func (c *Config) ApplyEnv() error {
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	if e.URL != "" {
		c.URL = e.URL
	}
	if e.WSPath != "" {
		c.WSPath = e.WSPath
	}
	if e.DiffMode != "" {
		v, err := strconv.ParseBool(e.DiffMode)
		if err != nil {
			return fmt.Errorf("config: %s_DIFF_MODE: %w", EnvPrefix, err)
		}
		c.DiffMode = v
	}
	if e.ControlAddr != "" {
		c.Control.Addr = e.ControlAddr
	}
	if e.BrowserRemote != "" {
		c.Browser.Remote = e.BrowserRemote
	}
	return nil
}

// Validate checks the configuration is usable by the CLI.
func (c *Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	} else if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("url %q must be an absolute http(s) URL", c.URL))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Errorf("ws_path %q must start with /", c.WSPath))
	}
	if c.Browser.Mode != ModeHeadless && c.Browser.Mode != ModeHeadful {
		errs = append(errs, fmt.Errorf("browser.mode %q must be headless or headful", c.Browser.Mode))
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case SinkStdout:
		case SinkWebhook:
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: webhook needs url", i))
			}
		case SinkSQLite:
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: sqlite needs path", i))
			}
		default:
			errs = append(errs, fmt.Errorf("sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
