package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/encore/internal/audio"
	"github.com/tessro/encore/internal/config"
	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/history"
	"github.com/tessro/encore/internal/identity"
	"github.com/tessro/encore/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.GraceDelay = 0
	cfg.Identity.PollInterval = 10
	cfg.Identity.File = filepath.Join(t.TempDir(), "identity.json")
	return cfg
}

func streamAcquirer() audio.Acquirer {
	return audio.AcquirerFunc(func(ctx context.Context, locator string) (audio.Resource, error) {
		return audio.NewStream(time.Hour, time.Hour), nil
	})
}

func TestPlayRecordsGuestHistory(t *testing.T) {
	st := store.NewMemoryStore()
	s, err := Open(testConfig(t), zerolog.Nop(), WithStore(st), WithAcquirer(streamAcquirer()))
	require.NoError(t, err)

	require.NoError(t, s.Player.Play(context.Background(), core.Song{Filename: "a.mp3"}))
	s.Player.Wait()

	assert.Equal(t, core.StatusPlaying, s.Player.Session().Status)
	view := s.History.View()
	assert.Equal(t, core.Guest, view.Identity)
	assert.Equal(t, []string{"a.mp3"}, core.Filenames(view.Records))

	_, ok, err := st.Get(context.Background(), store.GuestKey)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Close())
	assert.Equal(t, core.StatusIdle, s.Player.Session().Status)
}

func TestRecordsUnderCurrentIdentity(t *testing.T) {
	s, err := Open(testConfig(t), zerolog.Nop(),
		WithStore(store.NewMemoryStore()),
		WithAcquirer(streamAcquirer()),
		WithIdentitySource(identity.Static("alice")),
	)
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Remote)
	assert.Equal(t, "local", s.Backend())

	res := s.Load(context.Background())
	assert.Equal(t, history.Fallback, res.Kind)

	require.NoError(t, s.Player.Play(context.Background(), core.Song{Filename: "b.mp3"}))
	s.Player.Wait()

	view := s.History.View()
	assert.Equal(t, core.Identity("alice"), view.Identity)
	assert.Equal(t, []string{"b.mp3"}, core.Filenames(view.Records))
}

func TestRemoteConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.BaseURL = "http://127.0.0.1:1"
	s, err := Open(cfg, zerolog.Nop(), WithStore(store.NewMemoryStore()))
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.Remote)
	assert.True(t, s.History.HasRemote())
	assert.Equal(t, "http://127.0.0.1:1", s.Backend())
}

func TestFollowReloadsOnIdentityChange(t *testing.T) {
	cfg := testConfig(t)
	src, err := identity.NewFileSource(cfg.Identity.File)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	s, err := Open(cfg, zerolog.Nop(), WithStore(st), WithAcquirer(streamAcquirer()), WithIdentitySource(src))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Follow(ctx) }()

	require.NoError(t, src.Set("bob"))
	assert.Eventually(t, func() bool {
		return s.History.View().Identity == "bob"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, src.Clear())
	assert.Eventually(t, func() bool {
		return s.History.View().Identity == core.Guest
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return")
	}
}

func TestOpenDefaultStoreUsesDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENCORE_DATA_DIR", dir)

	s, err := Open(testConfig(t), zerolog.Nop(), WithAcquirer(streamAcquirer()))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Player.Play(context.Background(), core.Song{Filename: "c.mp3"}))
	s.Player.Wait()

	_, err = os.Stat(filepath.Join(dir, "history"))
	assert.NoError(t, err)
}
