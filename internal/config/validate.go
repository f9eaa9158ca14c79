package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}
	if err := c.Audio.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}
	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := c.History.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}
	if err := c.Identity.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("identity: %w", err))
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Tail.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tail: %w", err))
	}
	if err := c.TUI.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tui: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

// Validate checks RemoteConfig for errors.
func (c *RemoteConfig) Validate() error {
	if err := validateURL(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be non-negative")
	}
	return nil
}

// Validate checks AudioConfig for errors.
func (c *AudioConfig) Validate() error {
	if err := validateURL(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if c.GraceDelay < 0 {
		return errors.New("grace_delay must be non-negative")
	}
	if c.TickInterval < 0 {
		return errors.New("tick_interval must be non-negative")
	}
	if c.BitrateKbps < 0 {
		return errors.New("bitrate_kbps must be non-negative")
	}
	return nil
}

// Validate checks StoreConfig for errors.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case "", "file", "sqlite", "redis", "memory":
		// valid
	default:
		return fmt.Errorf("invalid backend: %s (must be file, sqlite, redis, or memory)", c.Backend)
	}
	if c.RedisDB < 0 {
		return errors.New("redis_db must be non-negative")
	}
	return nil
}

// Validate checks HistoryConfig for errors.
func (c *HistoryConfig) Validate() error {
	if c.LocalCap < 0 || c.RemoteCap < 0 {
		return errors.New("caps must be non-negative")
	}
	if c.RemoteCap > 0 && c.LocalCap > c.RemoteCap {
		return fmt.Errorf("local_cap (%d) must not exceed remote_cap (%d)", c.LocalCap, c.RemoteCap)
	}
	return nil
}

// Validate checks IdentityConfig for errors.
func (c *IdentityConfig) Validate() error {
	if c.PollInterval < 0 {
		return errors.New("poll_interval must be non-negative")
	}
	return nil
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	if c.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid cleanup_schedule: %w", err)
		}
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("rate_limit and rate_burst must be non-negative")
	}
	return nil
}

// Validate checks TailConfig for errors.
func (c *TailConfig) Validate() error {
	if c.Interval < 0 {
		return errors.New("interval must be non-negative")
	}
	return nil
}

// Validate checks TUIConfig for errors.
func (c *TUIConfig) Validate() error {
	switch c.Theme {
	case "", "auto", "dark", "light":
		// valid
	default:
		return fmt.Errorf("invalid theme: %s (must be auto, dark, or light)", c.Theme)
	}
	if c.RefreshInterval < 0 {
		return errors.New("refresh_interval must be non-negative")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	switch c.Format {
	case "", "auto", "console", "json":
		// valid
	default:
		return fmt.Errorf("invalid log format: %s (must be auto, console, or json)", c.Format)
	}
	return nil
}
