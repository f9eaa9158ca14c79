package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// AppName is used for config, data and state directory names.
const AppName = "encore"

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.encorerc, $XDG_CONFIG_HOME/encore/config.toml, ~/.config/encore/config.toml
// A .env file in the working directory is loaded before overrides are applied.
func Load() (*Config, error) {
	cfg := Default()

	path := findConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyDefaults()
	loadDotEnv()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	loadDotEnv()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultPath returns the path 'encore config init' writes to.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".encorerc"
	}
	return filepath.Join(home, ".encorerc")
}

// DataDir returns the directory used for local history and identity files.
func DataDir() string {
	if dir := os.Getenv("ENCORE_DATA_DIR"); dir != "" {
		return dir
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(configDir, AppName)
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".encorerc"),
	}

	// XDG_CONFIG_HOME or default
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, AppName, "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// loadDotEnv loads .env without overriding variables already set.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Remote
	if v, ok := os.LookupEnv("ENCORE_REMOTE_BASE_URL"); ok {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("ENCORE_REMOTE_TIMEOUT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Remote.Timeout = i
		}
	}

	// Audio
	if v := os.Getenv("ENCORE_AUDIO_BASE_URL"); v != "" {
		cfg.Audio.BaseURL = v
	}
	if v := os.Getenv("ENCORE_AUDIO_GRACE_DELAY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Audio.GraceDelay = i
		}
	}

	// Store
	if v := os.Getenv("ENCORE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("ENCORE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("ENCORE_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("ENCORE_REDIS_PASSWORD"); v != "" {
		cfg.Store.RedisPassword = v
	}

	// Identity
	if v := os.Getenv("ENCORE_IDENTITY_FILE"); v != "" {
		cfg.Identity.File = v
	}

	// Server
	if v := os.Getenv("ENCORE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ENCORE_SERVER_DATABASE"); v != "" {
		cfg.Server.Database = v
	}

	// Library
	if v := os.Getenv("ENCORE_LIBRARY_PATH"); v != "" {
		cfg.Library.Path = v
	}

	// Log
	if v := os.Getenv("ENCORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ENCORE_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("ENCORE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
