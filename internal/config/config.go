package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents configuration data for the session controller.
type Config struct {
	Backend         Backend `yaml:"backend"`
	LogCapacity     int     `yaml:"log_capacity"`
	ExportDirectory string  `yaml:"export_directory"`
	PushIntervalMs  int     `yaml:"push_interval_ms"`
	LoadSettings    bool    `yaml:"load_settings"`
}

// Backend locates the test engine's request and event endpoints.
type Backend struct {
	BaseURL        string `yaml:"base_url"`
	EventsURL      string `yaml:"events_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Backend: Backend{
			BaseURL:        "http://127.0.0.1:34115",
			TimeoutSeconds: 30,
		},
		LogCapacity:     500,
		ExportDirectory: filepath.Join(".dist", "exports"),
		PushIntervalMs:  250,
		LoadSettings:    true,
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return finalize(DefaultConfig())
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return finalize(DefaultConfig())
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return finalize(cfg)
}

func finalize(cfg Config) (Config, error) {
	defaults := DefaultConfig()
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = defaults.LogCapacity
	}
	if cfg.ExportDirectory == "" {
		cfg.ExportDirectory = defaults.ExportDirectory
	}
	if cfg.PushIntervalMs <= 0 {
		cfg.PushIntervalMs = defaults.PushIntervalMs
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = defaults.Backend.TimeoutSeconds
	}

	cfg.Backend.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.BaseURL == "" {
		return Config{}, errors.New("backend base_url is required")
	}
	base, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || base.Host == "" {
		return Config{}, fmt.Errorf("backend base_url %q is not an absolute URL", cfg.Backend.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return Config{}, fmt.Errorf("backend base_url scheme %q is not supported", base.Scheme)
	}

	if cfg.Backend.EventsURL == "" {
		cfg.Backend.EventsURL = eventsURLFor(base)
	}
	events, err := url.Parse(cfg.Backend.EventsURL)
	if err != nil || events.Host == "" {
		return Config{}, fmt.Errorf("backend events_url %q is not an absolute URL", cfg.Backend.EventsURL)
	}
	if events.Scheme != "ws" && events.Scheme != "wss" {
		return Config{}, fmt.Errorf("backend events_url scheme %q must be ws or wss", events.Scheme)
	}
	return cfg, nil
}

// eventsURLFor derives the push endpoint from the request endpoint.
func eventsURLFor(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/events"
	return u.String()
}
