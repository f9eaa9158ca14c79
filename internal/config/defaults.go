package config

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			Timeout: 5000,
		},
		Audio: AudioConfig{
			BaseURL:      "http://127.0.0.1:3000",
			GraceDelay:   100,
			TickInterval: 500,
			BitrateKbps:  128,
		},
		Store: StoreConfig{
			Backend:     "file",
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "encore:",
		},
		History: HistoryConfig{
			LocalCap:  10,
			RemoteCap: 20,
		},
		Identity: IdentityConfig{
			PollInterval: 2000,
		},
		Server: ServerConfig{
			Addr:            ":3000",
			Database:        "encore.db",
			CleanupSchedule: "@hourly",
			RateLimit:       20,
			RateBurst:       40,
		},
		Tail: TailConfig{
			Emoji:    true,
			Interval: 1000,
		},
		TUI: TUIConfig{
			Theme:           "auto",
			RefreshInterval: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Remote
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = d.Remote.Timeout
	}

	// Audio
	if c.Audio.BaseURL == "" {
		c.Audio.BaseURL = d.Audio.BaseURL
	}
	if c.Audio.TickInterval == 0 {
		c.Audio.TickInterval = d.Audio.TickInterval
	}
	if c.Audio.BitrateKbps == 0 {
		c.Audio.BitrateKbps = d.Audio.BitrateKbps
	}

	// Store
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = d.Store.RedisAddr
	}
	if c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = d.Store.RedisPrefix
	}

	// History
	if c.History.LocalCap == 0 {
		c.History.LocalCap = d.History.LocalCap
	}
	if c.History.RemoteCap == 0 {
		c.History.RemoteCap = d.History.RemoteCap
	}

	// Identity
	if c.Identity.PollInterval == 0 {
		c.Identity.PollInterval = d.Identity.PollInterval
	}

	// Server
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.Database == "" {
		c.Server.Database = d.Server.Database
	}
	if c.Server.CleanupSchedule == "" {
		c.Server.CleanupSchedule = d.Server.CleanupSchedule
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = d.Server.RateLimit
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}

	// Tail
	if c.Tail.Interval == 0 {
		c.Tail.Interval = d.Tail.Interval
	}

	// TUI
	if c.TUI.Theme == "" {
		c.TUI.Theme = d.TUI.Theme
	}
	if c.TUI.RefreshInterval == 0 {
		c.TUI.RefreshInterval = d.TUI.RefreshInterval
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}
