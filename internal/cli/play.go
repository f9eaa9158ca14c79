package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
	"github.com/tessro/encore/internal/tail"
	"github.com/tessro/encore/internal/wizard"
)

var (
	playTitle    string
	playArtist   string
	playLanguage string
	playEmotion  string
	playSource   string
	playFor      time.Duration
)

var playCmd = &cobra.Command{
	Use:   "play [filename]",
	Short: "Play a song and record it in the history",
	Long: `Play a song from the audio server and follow it until it finishes.

The play is recorded in the history of the current listener as soon as
playback starts. Without a filename, picks a song from the library.

Examples:
  encore play song.mp3
  encore play song.mp3 --title "Clair de Lune" --artist Debussy
  encore play song.mp3 --for 30s     # stop after 30 seconds
  encore play                        # pick from the library`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playTitle, "title", "", "song title")
	playCmd.Flags().StringVar(&playArtist, "artist", "", "song artist")
	playCmd.Flags().StringVar(&playLanguage, "language", "", "song language")
	playCmd.Flags().StringVar(&playEmotion, "emotion", "", "emotion tag")
	playCmd.Flags().StringVar(&playSource, "source", string(core.SourceManual), "what triggered the play (manual, face-detection, test)")
	playCmd.Flags().DurationVar(&playFor, "for", 0, "stop after this long (0 plays to the end)")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	song, err := resolveSong(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmdContext(cmd))
	defer cancel()

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	sess.Load(ctx)

	watcher := tail.NewWatcher(sess.Player, nil, 100*time.Millisecond)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() { _ = watcher.Start(watchCtx) }()

	if err := sess.Player.Play(ctx, song); err != nil {
		return err
	}

	var deadline <-chan time.Time
	if playFor > 0 {
		timer := time.NewTimer(playFor)
		defer timer.Stop()
		deadline = timer.C
	}

	formatter := tail.NewFormatter(tail.WithEmoji(cfg.Tail.Emoji))
	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			_ = sess.Player.Stop(context.Background())
			return nil
		case <-deadline:
			deadline = nil
			_ = sess.Player.Stop(ctx)
		case e, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if JSONOutput() {
				if err := writeJSON(out, newEventOutput(e)); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, formatter.Format(e))
			}
			switch e.Type {
			case tail.EventSongComplete, tail.EventSongSkip:
				return nil
			case tail.EventError:
				return e.Current.LastError
			}
		}
	}
}

// resolveSong builds the song from args and flags, prompting from the
// library when no filename was given.
func resolveSong(args []string) (core.Song, error) {
	if wizard.NeedsSong(args) {
		songs, err := loadSongs(nil)
		if err != nil {
			return core.Song{}, err
		}
		w := wizard.NewInteractive()
		w.SetSongs(songs)
		picked, err := w.PromptSong()
		if err != nil {
			return core.Song{}, err
		}
		if picked == nil {
			return core.Song{}, encerr.ErrMissingLocator
		}
		return applySongFlags(*picked), nil
	}
	return applySongFlags(core.Song{Filename: args[0]}), nil
}

// applySongFlags overrides song metadata with any flags that were set.
func applySongFlags(song core.Song) core.Song {
	if playTitle != "" {
		song.Title = playTitle
	}
	if playArtist != "" {
		song.Artist = playArtist
	}
	if playLanguage != "" {
		song.Language = playLanguage
	}
	if playEmotion != "" {
		song.Emotion = core.StringPtr(playEmotion)
	}
	if playSource != "" {
		song.Source = core.ParseSource(playSource)
	}
	return song
}
