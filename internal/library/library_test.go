package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.toml")
	content := `
[[songs]]
filename = "sunrise.mp3"
title = "Sunrise"
artist = "Aurora"
emotion = "happy"

[[songs]]
title = "no file"

[[songs]]
filename = "rain.mp3"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	songs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, songs, 2)
	assert.Equal(t, "Sunrise", songs[0].Title)
	assert.Equal(t, "happy", songs[0].EmotionString())
	assert.Equal(t, "rain.mp3", songs[1].Filename)
	assert.Nil(t, songs[1].Emotion)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, encerr.ErrNotFound))
	assert.NotEmpty(t, encerr.GetSuggestion(err))
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[songs]\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestFromArgsAndFilter(t *testing.T) {
	songs := FromArgs([]string{"a.mp3", " ", "Blue Sky.mp3"})
	require.Len(t, songs, 2)

	songs = append(songs, core.Song{Filename: "x.mp3", Artist: "Skyline"})
	assert.Equal(t, []int{0, 1, 2}, Filter(songs, ""))
	assert.Equal(t, []int{1, 2}, Filter(songs, "SKY"))
	assert.Empty(t, Filter(songs, "zzz"))
}
