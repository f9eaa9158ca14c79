// Package library loads the list of songs offered by the TUI.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
)

type file struct {
	Songs []entry `toml:"songs"`
}

type entry struct {
	Filename string `toml:"filename"`
	Title    string `toml:"title"`
	Artist   string `toml:"artist"`
	Language string `toml:"language"`
	Emotion  string `toml:"emotion"`
	Source   string `toml:"source"`
}

// Load reads songs from a TOML file of [[songs]] tables. Entries without a
// filename are skipped.
func Load(path string) ([]core.Song, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, encerr.WithSuggestion(
				fmt.Errorf("library %s: %w", path, encerr.ErrNotFound),
				"Set library.path in your config or pass filenames to 'encore tui'",
			)
		}
		return nil, fmt.Errorf("failed to parse library %s: %w", path, err)
	}

	songs := make([]core.Song, 0, len(f.Songs))
	for _, e := range f.Songs {
		if strings.TrimSpace(e.Filename) == "" {
			continue
		}
		songs = append(songs, core.Song{
			Filename: e.Filename,
			Title:    e.Title,
			Artist:   e.Artist,
			Language: e.Language,
			Emotion:  core.StringPtr(e.Emotion),
			Source:   core.Source(e.Source),
		})
	}
	return songs, nil
}

// FromArgs builds songs from bare filenames.
func FromArgs(args []string) []core.Song {
	songs := make([]core.Song, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			songs = append(songs, core.Song{Filename: a})
		}
	}
	return songs
}

// Filter returns the indexes of songs whose filename, title or artist
// contains query, ignoring case. An empty query matches everything.
func Filter(songs []core.Song, query string) []int {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]int, 0, len(songs))
	for i, s := range songs {
		if query == "" ||
			strings.Contains(strings.ToLower(s.Filename), query) ||
			strings.Contains(strings.ToLower(s.Title), query) ||
			strings.Contains(strings.ToLower(s.Artist), query) {
			out = append(out, i)
		}
	}
	return out
}
