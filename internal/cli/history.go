package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
	"github.com/tessro/encore/internal/history"
	"github.com/tessro/encore/internal/identity"
	"github.com/tessro/encore/internal/session"
)

var historyAs string

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"recent"},
	Short:   "Show and manage recently played songs",
	Long: `Show the recently played list of the current listener.

Signed-in listeners read from the remote history service and fall back to
the local copy when it is unreachable. Guests always use the local list.`,
	RunE: runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently played songs",
	RunE:  runHistoryList,
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove <filename>...",
	Short: "Remove songs from the history",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistoryRemove,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the local history",
	Long: `Clear the local history of the current listener.

Remote history is not deleted and reappears the next time it is loaded.`,
	RunE: runHistoryClear,
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyAs, "as", "", "act as this listener instead of the signed-in one")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyRemoveCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistorySession() (*session.Session, error) {
	var opts []session.Option
	if historyAs != "" {
		opts = append(opts, session.WithIdentitySource(identity.Static(core.NormalizeIdentity(historyAs))))
	}
	return openSession(opts...)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	sess, err := openHistorySession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	id := sess.CurrentIdentity(ctx)
	res := sess.History.Load(ctx, id)
	return reportHistory(cmd, id, res)
}

func runHistoryRemove(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	sess, err := openHistorySession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	id := sess.CurrentIdentity(ctx)
	loaded := sess.History.Load(ctx, id)
	if err := loaded.Err(); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	partial := encerr.PartialResult[history.Result]{Data: loaded}
	for _, filename := range args {
		res := sess.History.Remove(ctx, filename, id)
		if err := res.Err(); err != nil {
			partial.AddError(fmt.Errorf("failed to remove %s: %w", filename, err))
			continue
		}
		logger.Debug().Str("filename", filename).Stringer("result", res.Kind).Msg("removed from history")
		partial.Data = res
	}
	if partial.HasErrors() && len(partial.Errors) == len(args) {
		return errors.Join(partial.Errors...)
	}
	if partial.HasErrors() {
		fmt.Fprint(cmd.ErrOrStderr(), partial.ErrorSummary())
	}
	return reportHistory(cmd, id, partial.Data)
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	sess, err := openHistorySession()
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	id := sess.CurrentIdentity(ctx)
	res := sess.History.Clear(ctx, id)
	if err := res.Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), newHistoryOutput(id, res))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared local history for %s\n", id)
	return nil
}

func reportHistory(cmd *cobra.Command, id core.Identity, res history.Result) error {
	if err := res.Err(); err != nil {
		return err
	}
	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), newHistoryOutput(id, res))
	}
	if note := resultNote(res); note != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), note)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recently played for %s (%s)\n\n", id, res.Backend)
	printHistory(cmd.OutOrStdout(), res.Records, time.Now())
	return nil
}

// cmdContext returns the command's context, or Background when run outside
// Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
