// Package wizard prompts for missing input when running on a terminal.
package wizard

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/tessro/encore/internal/core"
)

// Interactive provides interactive fallback functionality.
type Interactive struct {
	enabled bool
	songs   []core.Song
}

// NewInteractive creates a new interactive handler.
func NewInteractive() *Interactive {
	return &Interactive{
		enabled: true,
	}
}

// SetEnabled enables or disables interactive mode.
func (i *Interactive) SetEnabled(enabled bool) {
	i.enabled = enabled
}

// SetSongs sets the songs offered by the song picker.
func (i *Interactive) SetSongs(songs []core.Song) {
	i.songs = songs
}

// IsTerminal returns true if stdin and stdout are terminals.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// CanInteract returns true if interactive mode is available.
func (i *Interactive) CanInteract() bool {
	return i.enabled && IsTerminal()
}

// ValidateIdentity rejects blank identities and the reserved guest name.
func ValidateIdentity(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("identity cannot be empty")
	}
	if core.Identity(s).IsGuest() {
		return fmt.Errorf("%q is reserved for signed-out use", s)
	}
	if strings.ContainsAny(s, "/\\") {
		return errors.New("identity cannot contain slashes")
	}
	return nil
}

// PromptIdentity asks who is listening. It returns "" when not interactive.
func (i *Interactive) PromptIdentity(current core.Identity) (core.Identity, error) {
	if !i.CanInteract() {
		return "", nil
	}

	var value string
	if !current.IsGuest() {
		value = current.String()
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sign in as").
				Description("History is synced under this name").
				Placeholder("your user id").
				Validate(ValidateIdentity).
				Value(&value),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("sign in cancelled: %w", err)
	}
	return core.NormalizeIdentity(value), nil
}

// PromptSong lets the user pick a song from the library. It returns nil
// when not interactive or when there is nothing to pick.
func (i *Interactive) PromptSong() (*core.Song, error) {
	if !i.CanInteract() || len(i.songs) == 0 {
		return nil, nil
	}

	options := make([]huh.Option[int], len(i.songs))
	for n, s := range i.songs {
		label := s.DisplayTitle()
		if s.Artist != "" {
			label += " — " + s.Artist
		}
		options[n] = huh.NewOption(label, n)
	}

	var selected int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Play a song").
				Options(options...).
				Filtering(true).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("selection cancelled: %w", err)
	}
	song := i.songs[selected]
	return &song, nil
}

// NeedsSong returns true if a song argument is required but missing.
func NeedsSong(args []string) bool {
	return len(args) == 0
}
