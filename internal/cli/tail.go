package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/library"
	"github.com/tessro/encore/internal/session"
	"github.com/tessro/encore/internal/tail"
)

var (
	tailNoEmoji   bool
	tailTimestamp bool
	tailFormat    string
	tailInterval  time.Duration
	tailPlay      []string
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow playback and history changes in real-time",
	Long: `Watch the playback session and the history view and print changes as
they happen. Identity changes made with 'encore identity' reload the history.

Events tracked:
  - Song changes (new song started)
  - Song completions (song finished)
  - Song skips (song stopped before completion)
  - Pause/Resume
  - Playback errors
  - History changes`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailNoEmoji, "no-emoji", false, "disable emoji output")
	tailCmd.Flags().BoolVarP(&tailTimestamp, "timestamp", "t", false, "show timestamps")
	tailCmd.Flags().StringVarP(&tailFormat, "format", "f", "", "custom format template")
	tailCmd.Flags().DurationVarP(&tailInterval, "interval", "i", 0, "poll interval (default from tail.interval)")
	tailCmd.Flags().StringArrayVarP(&tailPlay, "play", "p", nil, "play these files in order while following")

	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	formatter := tail.NewFormatter(
		tail.WithEmoji(cfg.Tail.Emoji && !tailNoEmoji),
		tail.WithTimestamp(tailTimestamp),
		tail.WithTemplate(tailFormat),
	)

	interval := tailInterval
	if interval == 0 {
		interval = time.Duration(cfg.Tail.Interval) * time.Millisecond
	}

	ctx, cancel := signalContext(cmdContext(cmd))
	defer cancel()

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	out := cmd.OutOrStdout()
	res := sess.Load(ctx)
	if note := resultNote(res); note != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), note)
	}
	showInitialState(out, res.Records, formatter)

	watcher := tail.NewWatcher(sess.Player, sess.History, interval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Follow(gctx) })
	g.Go(func() error { return watcher.Start(gctx) })
	if len(tailPlay) > 0 {
		g.Go(func() error { return playQueue(gctx, sess, library.FromArgs(tailPlay)) })
	}
	g.Go(func() error {
		for e := range watcher.Events() {
			if JSONOutput() {
				if err := writeJSON(out, newEventOutput(e)); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(out, formatter.Format(e))
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// showInitialState prints the loaded history oldest first so the newest
// entry ends up just above the live events.
func showInitialState(out io.Writer, records []core.HistoryRecord, formatter *tail.Formatter) {
	if len(records) > 5 {
		records = records[:5]
	}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		timestamp := ""
		if tailTimestamp {
			timestamp = r.PlayedAt.Local().Format("15:04:05") + " "
		}
		emoji := ""
		if formatter.Emoji() {
			emoji = "⏪ "
		}
		fmt.Fprintf(out, "%s%s%s — %s\n", timestamp, emoji, r.Artist, r.Title)
	}
}

// playQueue plays songs one after another, moving on when each one leaves
// the session.
func playQueue(ctx context.Context, sess *session.Session, songs []core.Song) error {
	for _, song := range songs {
		if err := playToEnd(ctx, sess, song); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Str("filename", song.Filename).Msg("failed to play queued song")
		}
	}
	return nil
}

// playToEnd plays song and waits until its generation finishes or goes idle.
func playToEnd(ctx context.Context, sess *session.Session, song core.Song) error {
	ended := make(chan uint64, 8)
	unsubscribe := sess.Player.Subscribe(func(s core.Session) {
		if s.Status != core.StatusFinished && s.Status != core.StatusIdle {
			return
		}
		select {
		case ended <- s.Generation:
		default:
		}
	})
	defer unsubscribe()

	if err := sess.Player.Play(ctx, song); err != nil {
		return err
	}
	gen := sess.Player.Session().Generation
	if sess.Player.Session().Status == core.StatusIdle {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case g := <-ended:
			if g == gen {
				return nil
			}
		}
	}
}

// eventOutput is the JSON shape of a tail event.
type eventOutput struct {
	Type      string               `json:"type"`
	Timestamp time.Time            `json:"timestamp"`
	Session   *core.Session        `json:"session,omitempty"`
	Error     string               `json:"error,omitempty"`
	Identity  string               `json:"identity,omitempty"`
	History   []core.HistoryRecord `json:"history,omitempty"`
}

func newEventOutput(e tail.Event) eventOutput {
	out := eventOutput{
		Type:      e.Type.String(),
		Timestamp: e.Timestamp,
		Session:   e.Current,
	}
	if e.Current != nil && e.Current.LastError != nil {
		out.Error = e.Current.LastError.Error()
	}
	if e.History != nil {
		out.Identity = e.History.Identity.String()
		out.History = e.History.Records
	}
	return out
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
