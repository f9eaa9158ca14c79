package server

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/encore/internal/core"
)

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func record(user, filename string, offset time.Duration) core.HistoryRecord {
	return core.HistoryRecord{
		ID:       "id-" + filename,
		UserID:   user,
		Filename: filename,
		Title:    "Title " + filename,
		Artist:   core.DefaultArtist,
		Language: "English",
		Source:   core.SourceManual,
		PlayedAt: baseTime.Add(offset),
	}
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	fileRepo, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	memSQLite, err := OpenSQLite(":memory:")
	require.NoError(t, err)

	repos := map[string]Repository{
		"memory":        NewMemoryRepository(),
		"sqlite":        fileRepo,
		"sqlite-memory": memSQLite,
	}
	t.Cleanup(func() {
		for _, r := range repos {
			r.Close()
		}
	})
	return repos
}

func TestRepositoryContract(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("orders most recent first", func(t *testing.T) {
				require.NoError(t, repo.Upsert(ctx, record("order", "a.mp3", 0), DefaultKeep))
				require.NoError(t, repo.Upsert(ctx, record("order", "b.mp3", time.Minute), DefaultKeep))
				require.NoError(t, repo.Upsert(ctx, record("order", "c.mp3", 2*time.Minute), DefaultKeep))

				got, err := repo.List(ctx, "order", DefaultKeep)
				require.NoError(t, err)
				assert.Equal(t, []string{"c.mp3", "b.mp3", "a.mp3"}, core.Filenames(got))
				assert.True(t, got[0].PlayedAt.Equal(baseTime.Add(2*time.Minute)))
			})

			t.Run("upsert replaces same filename", func(t *testing.T) {
				require.NoError(t, repo.Upsert(ctx, record("dedup", "a.mp3", 0), DefaultKeep))
				require.NoError(t, repo.Upsert(ctx, record("dedup", "b.mp3", time.Minute), DefaultKeep))
				require.NoError(t, repo.Upsert(ctx, record("dedup", "a.mp3", 2*time.Minute), DefaultKeep))

				got, err := repo.List(ctx, "dedup", DefaultKeep)
				require.NoError(t, err)
				assert.Equal(t, []string{"a.mp3", "b.mp3"}, core.Filenames(got))
			})

			t.Run("ties keep insertion order", func(t *testing.T) {
				require.NoError(t, repo.Upsert(ctx, record("ties", "x.mp3", 0), DefaultKeep))
				require.NoError(t, repo.Upsert(ctx, record("ties", "y.mp3", 0), DefaultKeep))

				got, err := repo.List(ctx, "ties", DefaultKeep)
				require.NoError(t, err)
				assert.Equal(t, []string{"y.mp3", "x.mp3"}, core.Filenames(got))
			})

			t.Run("upsert prunes to keep", func(t *testing.T) {
				for i := 0; i < 25; i++ {
					rec := record("cap", fmt.Sprintf("%02d.mp3", i), time.Duration(i)*time.Second)
					require.NoError(t, repo.Upsert(ctx, rec, DefaultKeep))
				}
				got, err := repo.List(ctx, "cap", 0)
				require.NoError(t, err)
				require.Len(t, got, DefaultKeep)
				assert.Equal(t, "24.mp3", got[0].Filename)
				assert.Equal(t, "05.mp3", got[DefaultKeep-1].Filename)
			})

			t.Run("emotion round trips", func(t *testing.T) {
				rec := record("emotion", "happy.mp3", 0)
				rec.Emotion = core.StringPtr("happy")
				require.NoError(t, repo.Upsert(ctx, rec, DefaultKeep))
				require.NoError(t, repo.Upsert(ctx, record("emotion", "plain.mp3", time.Second), DefaultKeep))

				got, err := repo.List(ctx, "emotion", DefaultKeep)
				require.NoError(t, err)
				require.Len(t, got, 2)
				assert.Nil(t, got[0].Emotion)
				require.NotNil(t, got[1].Emotion)
				assert.Equal(t, "happy", *got[1].Emotion)
			})

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, repo.Upsert(ctx, record("del", "a.mp3", 0), DefaultKeep))
				require.NoError(t, repo.Upsert(ctx, record("del", "b.mp3", time.Second), DefaultKeep))
				require.NoError(t, repo.Delete(ctx, "del", "a.mp3"))
				require.NoError(t, repo.Delete(ctx, "del", "missing.mp3"))

				got, err := repo.List(ctx, "del", DefaultKeep)
				require.NoError(t, err)
				assert.Equal(t, []string{"b.mp3"}, core.Filenames(got))
			})

			t.Run("users are independent", func(t *testing.T) {
				require.NoError(t, repo.Upsert(ctx, record("u1", "same.mp3", 0), DefaultKeep))
				require.NoError(t, repo.Upsert(ctx, record("u2", "same.mp3", 0), DefaultKeep))
				require.NoError(t, repo.Delete(ctx, "u1", "same.mp3"))

				got, err := repo.List(ctx, "u2", DefaultKeep)
				require.NoError(t, err)
				assert.Len(t, got, 1)
			})

			t.Run("unknown user is empty", func(t *testing.T) {
				got, err := repo.List(ctx, "nobody", DefaultKeep)
				require.NoError(t, err)
				assert.NotNil(t, got)
				assert.Empty(t, got)
			})

			t.Run("prune and user ids", func(t *testing.T) {
				for i := 0; i < 5; i++ {
					rec := record("prune", fmt.Sprintf("%d.mp3", i), time.Duration(i)*time.Second)
					require.NoError(t, repo.Upsert(ctx, rec, DefaultKeep))
				}
				n, err := repo.Prune(ctx, "prune", 2)
				require.NoError(t, err)
				assert.Equal(t, int64(3), n)

				got, err := repo.List(ctx, "prune", 0)
				require.NoError(t, err)
				assert.Equal(t, []string{"4.mp3", "3.mp3"}, core.Filenames(got))

				ids, err := repo.UserIDs(ctx)
				require.NoError(t, err)
				assert.Contains(t, ids, "prune")
				assert.NotContains(t, ids, "nobody")
			})
		})
	}
}

func TestOpenRepository(t *testing.T) {
	ctx := context.Background()

	repo, err := OpenRepository(ctx, ":memory:")
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)

	repo, err = OpenRepository(ctx, filepath.Join(t.TempDir(), "sub", "h.db"))
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &SQLiteRepository{}, repo)
}

func TestSQLitePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "h.db")

	repo, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, record("alice", "a.mp3", 0), DefaultKeep))
	require.NoError(t, repo.Close())

	repo, err = OpenSQLite(path)
	require.NoError(t, err)
	defer repo.Close()
	got, err := repo.List(ctx, "alice", DefaultKeep)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp3"}, core.Filenames(got))
}
