// Package store provides the local key-value persistence used for guest
// history and for per-identity fallback partitions.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tessro/encore/internal/config"
	"github.com/tessro/encore/internal/core"
)

// GuestKey holds the history of the anonymous identity.
const GuestKey = "guest_recently_played"

// Store is a minimal key-value store. Get reports absent keys with ok=false
// and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// UserKey returns the fallback partition key for a signed-in identity.
func UserKey(id string) string {
	return "user_" + id + "_recently_played"
}

// KeyFor returns the partition key for identity.
func KeyFor(identity core.Identity) string {
	if identity.IsGuest() {
		return GuestKey
	}
	return UserKey(identity.String())
}

// Open builds the store selected by cfg.Backend. dataDir is used when
// cfg.Path is empty.
func Open(cfg config.StoreConfig, dataDir string) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(dataDir, "history")
		}
		return NewFileStore(path)
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(dataDir, "history.db")
		}
		return OpenSQLite(path)
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
