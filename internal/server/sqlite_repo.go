package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tessro/encore/internal/core"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS recently_played (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT    NOT NULL,
	user_id   TEXT    NOT NULL,
	filename  TEXT    NOT NULL,
	title     TEXT    NOT NULL,
	artist    TEXT    NOT NULL,
	language  TEXT    NOT NULL,
	emotion   TEXT,
	source    TEXT    NOT NULL,
	played_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recently_played_user ON recently_played (user_id, played_at DESC);
`

// SQLiteRepository stores records in a sqlite database.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000", "PRAGMA synchronous = NORMAL"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) List(ctx context.Context, userID string, limit int) ([]core.HistoryRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, filename, title, artist, language, emotion, source, played_at
		FROM recently_played
		WHERE user_id = ?
		ORDER BY played_at DESC, seq DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.HistoryRecord{}
	for rows.Next() {
		var (
			rec      core.HistoryRecord
			source   string
			playedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Filename, &rec.Title, &rec.Artist,
			&rec.Language, &rec.Emotion, &source, &playedAt); err != nil {
			return nil, err
		}
		rec.Source = core.ParseSource(source)
		rec.PlayedAt = time.UnixMilli(playedAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec core.HistoryRecord, keep int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recently_played WHERE user_id = ? AND filename = ?`,
		rec.UserID, rec.Filename); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO recently_played (id, user_id, filename, title, artist, language, emotion, source, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Filename, rec.Title, rec.Artist, rec.Language,
		rec.Emotion, string(rec.Source), rec.PlayedAt.UnixMilli()); err != nil {
		return err
	}
	if _, err := pruneSQLite(ctx, tx, rec.UserID, keep); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID, filename string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM recently_played WHERE user_id = ? AND filename = ?`, userID, filename)
	return err
}

func (r *SQLiteRepository) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM recently_played ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) Prune(ctx context.Context, userID string, keep int) (int64, error) {
	return pruneSQLite(ctx, r.db, userID, keep)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func pruneSQLite(ctx context.Context, db execer, userID string, keep int) (int64, error) {
	if keep < 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, `
		DELETE FROM recently_played
		WHERE user_id = ? AND seq NOT IN (
			SELECT seq FROM recently_played
			WHERE user_id = ?
			ORDER BY played_at DESC, seq DESC
			LIMIT ?
		)`, userID, userID, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
