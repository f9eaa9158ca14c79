package server

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessro/encore/internal/core"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS recently_played (
	seq       BIGSERIAL PRIMARY KEY,
	id        TEXT        NOT NULL,
	user_id   TEXT        NOT NULL,
	filename  TEXT        NOT NULL,
	title     TEXT        NOT NULL,
	artist    TEXT        NOT NULL,
	language  TEXT        NOT NULL,
	emotion   TEXT,
	source    TEXT        NOT NULL,
	played_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recently_played_user ON recently_played (user_id, played_at DESC);
`

// PostgresRepository stores records in Postgres through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, limit int) ([]core.HistoryRecord, error) {
	query := `
		SELECT id, user_id, filename, title, artist, language, emotion, source, played_at
		FROM recently_played
		WHERE user_id = $1
		ORDER BY played_at DESC, seq DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.HistoryRecord{}
	for rows.Next() {
		var (
			rec    core.HistoryRecord
			source string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Filename, &rec.Title, &rec.Artist,
			&rec.Language, &rec.Emotion, &source, &rec.PlayedAt); err != nil {
			return nil, err
		}
		rec.Source = core.ParseSource(source)
		rec.PlayedAt = rec.PlayedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec core.HistoryRecord, keep int) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM recently_played WHERE user_id = $1 AND filename = $2`,
			rec.UserID, rec.Filename); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO recently_played (id, user_id, filename, title, artist, language, emotion, source, played_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.ID, rec.UserID, rec.Filename, rec.Title, rec.Artist, rec.Language,
			rec.Emotion, string(rec.Source), rec.PlayedAt); err != nil {
			return err
		}
		_, err := prunePostgres(ctx, tx, rec.UserID, keep)
		return err
	})
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, filename string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM recently_played WHERE user_id = $1 AND filename = $2`, userID, filename)
	return err
}

func (r *PostgresRepository) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM recently_played ORDER BY user_id`)
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

func (r *PostgresRepository) Prune(ctx context.Context, userID string, keep int) (int64, error) {
	return prunePostgres(ctx, r.pool, userID, keep)
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func prunePostgres(ctx context.Context, db pgExecer, userID string, keep int) (int64, error) {
	if keep < 0 {
		return 0, nil
	}
	tag, err := db.Exec(ctx, `
		DELETE FROM recently_played
		WHERE user_id = $1 AND seq NOT IN (
			SELECT seq FROM recently_played
			WHERE user_id = $1
			ORDER BY played_at DESC, seq DESC
			LIMIT $2
		)`, userID, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
