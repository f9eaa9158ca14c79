package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show listener, storage and history service status",
	Long: `Shows who is listening, where their history is kept, whether the
history service is reachable and the most recent play.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusResult struct {
	Identity     string     `json:"identity"`
	Guest        bool       `json:"guest"`
	Store        string     `json:"store"`
	Remote       string     `json:"remote,omitempty"`
	RemoteOK     bool       `json:"remoteOk"`
	RemoteError  string     `json:"remoteError,omitempty"`
	HistoryFrom  string     `json:"historyFrom"`
	HistoryCount int        `json:"historyCount"`
	LastPlayed   string     `json:"lastPlayed,omitempty"`
	LastPlayedAt *time.Time `json:"lastPlayedAt,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	sess, err := openSession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	id := sess.CurrentIdentity(ctx)
	st := statusResult{
		Identity: id.String(),
		Guest:    id.IsGuest(),
		Store:    cfg.Store.Backend,
	}

	if sess.Remote != nil {
		st.Remote = sess.Remote.BaseURL()
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Remote.TimeoutDuration())
		err := sess.Remote.Ping(pingCtx)
		cancel()
		st.RemoteOK = err == nil
		if err != nil {
			st.RemoteError = err.Error()
		}
	}

	res := sess.History.Load(ctx, id)
	st.HistoryFrom = res.Kind.String()
	if res.Backend != "" {
		st.HistoryFrom = fmt.Sprintf("%s (%s)", res.Backend, res.Kind)
	}
	st.HistoryCount = len(res.Records)
	if len(res.Records) > 0 {
		latest := res.Records[0]
		st.LastPlayed = fmt.Sprintf("%s — %s", latest.Artist, latest.Title)
		playedAt := latest.PlayedAt
		st.LastPlayedAt = &playedAt
	}

	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), st)
	}

	t := NewTableWriter(cmd.OutOrStdout())
	if st.Guest {
		t.Row("Listener:", "guest")
	} else {
		t.Row("Listener:", st.Identity)
	}
	t.Row("Store:", st.Store)
	switch {
	case st.Remote == "":
		t.Row("History service:", "not configured")
	case st.RemoteOK:
		t.Row("History service:", st.Remote+" (reachable)")
	default:
		t.Row("History service:", fmt.Sprintf("%s (unreachable: %s)", st.Remote, st.RemoteError))
	}
	t.Row("History:", fmt.Sprintf("%d songs from %s", st.HistoryCount, st.HistoryFrom))
	if st.LastPlayedAt != nil {
		t.Row("Last played:", fmt.Sprintf("%s, %s", st.LastPlayed, humanize.Time(*st.LastPlayedAt)))
	}
	t.Flush()
	return nil
}
