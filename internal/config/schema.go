package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Remote   RemoteConfig   `toml:"remote"`
	Audio    AudioConfig    `toml:"audio"`
	Store    StoreConfig    `toml:"store"`
	History  HistoryConfig  `toml:"history"`
	Identity IdentityConfig `toml:"identity"`
	Server   ServerConfig   `toml:"server"`
	Library  LibraryConfig  `toml:"library"`
	Tail     TailConfig     `toml:"tail"`
	TUI      TUIConfig      `toml:"tui"`
	Log      LogConfig      `toml:"log"`
}

// RemoteConfig holds settings for the remote history service.
// An empty BaseURL disables the remote and keeps all history local.
type RemoteConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout int    `toml:"timeout"` // milliseconds
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c RemoteConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// AudioConfig holds settings for the audio capability.
type AudioConfig struct {
	BaseURL      string `toml:"base_url"`
	GraceDelay   int    `toml:"grace_delay"`   // milliseconds between release and acquire
	TickInterval int    `toml:"tick_interval"` // milliseconds between status updates
	BitrateKbps  int    `toml:"bitrate_kbps"`  // used to estimate duration from content length
}

// GraceDelayDuration returns GraceDelay as a time.Duration.
func (c AudioConfig) GraceDelayDuration() time.Duration {
	return time.Duration(c.GraceDelay) * time.Millisecond
}

// TickIntervalDuration returns TickInterval as a time.Duration.
func (c AudioConfig) TickIntervalDuration() time.Duration {
	return time.Duration(c.TickInterval) * time.Millisecond
}

// StoreConfig selects and configures the local key-value store.
type StoreConfig struct {
	Backend       string `toml:"backend"` // file, sqlite, redis, memory
	Path          string `toml:"path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

// HistoryConfig holds history capacity settings.
type HistoryConfig struct {
	LocalCap  int `toml:"local_cap"`
	RemoteCap int `toml:"remote_cap"`
}

// IdentityConfig holds identity adapter settings.
type IdentityConfig struct {
	File         string `toml:"file"`
	PollInterval int    `toml:"poll_interval"` // milliseconds
}

// PollIntervalDuration returns PollInterval as a time.Duration.
func (c IdentityConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// ServerConfig holds settings for 'encore serve'.
type ServerConfig struct {
	Addr            string  `toml:"addr"`
	Database        string  `toml:"database"`
	CleanupSchedule string  `toml:"cleanup_schedule"`
	RateLimit       float64 `toml:"rate_limit"` // requests per second per client IP
	RateBurst       int     `toml:"rate_burst"`
}

// LibraryConfig points at the song library used by the TUI.
type LibraryConfig struct {
	Path string `toml:"path"`
}

// TailConfig holds settings for follow mode.
type TailConfig struct {
	Emoji    bool `toml:"emoji"`
	Interval int  `toml:"interval"`
}

// TUIConfig holds terminal UI settings.
type TUIConfig struct {
	Theme           string `toml:"theme"`
	RefreshInterval int    `toml:"refresh_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"`
}
