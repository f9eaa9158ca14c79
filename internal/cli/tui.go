package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
	"github.com/tessro/encore/internal/library"
	"github.com/tessro/encore/internal/tui"
)

var (
	tuiRefresh int
	tuiTheme   string
)

var tuiCmd = &cobra.Command{
	Use:     "ui [filename]...",
	Aliases: []string{"tui"},
	Short:   "Launch interactive dashboard",
	Long: `Launch the interactive terminal dashboard.

Songs come from the library file (library.path) or from the filenames
given on the command line.

The dashboard provides a live view with:
  • Now Playing - current song, status, progress
  • Library - songs to play
  • History - recently played songs of the current listener

Keyboard shortcuts:
  q, Ctrl+C    Quit
  ?            Help
  /            Filter library
  Tab          Switch panel
  j/k          Move selection
  Enter        Play selected song
  Space        Pause/Resume
  s            Stop
  d            Remove from history
  c            Clear local history
  r            Reload history`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().IntVar(&tuiRefresh, "refresh", 0, "refresh interval in milliseconds (default from tui.refresh_interval)")
	tuiCmd.Flags().StringVar(&tuiTheme, "theme", "", "color theme: auto, dark, light")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	songs, err := loadSongs(args)
	if err != nil {
		return err
	}

	refresh := cfg.TUI.RefreshInterval
	if tuiRefresh > 0 {
		refresh = tuiRefresh
	}
	theme := cfg.TUI.Theme
	if tuiTheme != "" {
		theme = tuiTheme
	}

	ctx, cancel := signalContext(cmdContext(cmd))
	defer cancel()

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	go func() {
		if err := sess.Follow(ctx); err != nil {
			logger.Warn().Err(err).Msg("identity follow stopped")
		}
	}()

	app := tui.NewApp(sess.Player, sess.History, sess.Identity, songs, time.Duration(refresh)*time.Millisecond)
	return tui.Run(app, theme)
}

// loadSongs returns the songs named in args, or the library when there are
// none. A missing library is not an error.
func loadSongs(args []string) ([]core.Song, error) {
	if len(args) > 0 {
		return library.FromArgs(args), nil
	}
	if cfg.Library.Path == "" {
		return nil, nil
	}
	songs, err := library.Load(cfg.Library.Path)
	if errors.Is(err, encerr.ErrNotFound) {
		logger.Warn().Str("path", cfg.Library.Path).Msg("library not found")
		return nil, nil
	}
	return songs, err
}
