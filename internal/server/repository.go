// Package server implements the remote history service that signed-in
// identities sync their recently-played lists with.
package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/tessro/encore/internal/core"
)

// DefaultKeep is how many records the service keeps per user.
const DefaultKeep = 20

// Repository stores history records per user. List returns records most
// recent first; records played at the same instant keep insertion order,
// newest insert first.
type Repository interface {
	List(ctx context.Context, userID string, limit int) ([]core.HistoryRecord, error)
	// Upsert replaces any record with the same filename, inserts rec and
	// prunes the user's history to keep records, all in one transaction.
	Upsert(ctx context.Context, rec core.HistoryRecord, keep int) error
	Delete(ctx context.Context, userID, filename string) error
	UserIDs(ctx context.Context) ([]string, error)
	// Prune deletes all but the keep most recent records and reports how
	// many were removed.
	Prune(ctx context.Context, userID string, keep int) (int64, error)
	Close() error
}

// OpenRepository picks an implementation from dsn: postgres:// URLs use
// Postgres, ":memory:" or an empty dsn keep everything in memory, anything
// else is a sqlite file path.
func OpenRepository(ctx context.Context, dsn string) (Repository, error) {
	switch {
	case dsn == "" || dsn == ":memory:":
		return NewMemoryRepository(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		repo, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return repo, nil
	default:
		repo, err := OpenSQLite(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database %s: %w", dsn, err)
		}
		return repo, nil
	}
}
