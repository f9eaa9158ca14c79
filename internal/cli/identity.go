package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
	"github.com/tessro/encore/internal/identity"
	"github.com/tessro/encore/internal/wizard"
)

var identityCmd = &cobra.Command{
	Use:     "identity",
	Aliases: []string{"whoami"},
	Short:   "Show or change who is listening",
	Long: `Commands for choosing whose history plays are recorded under.

The identity is stored in a file shared by every encore process, so a
running 'encore tail' or 'encore ui' picks up a change within one poll.`,
	RunE: runIdentityShow,
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current listener",
	RunE:  runIdentityShow,
}

var identityLoginCmd = &cobra.Command{
	Use:   "login [user-id]",
	Short: "Sign in as a listener",
	Long: `Sign in as a listener. Without an argument, prompts for a user id when
running in a terminal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIdentityLogin,
}

var identityLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and listen as guest",
	RunE:  runIdentityLogout,
}

func init() {
	identityCmd.AddCommand(identityShowCmd)
	identityCmd.AddCommand(identityLoginCmd)
	identityCmd.AddCommand(identityLogoutCmd)
	rootCmd.AddCommand(identityCmd)
}

func identityFile() (*identity.FileSource, error) {
	return identity.NewFileSource(cfg.Identity.File)
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	src, err := identityFile()
	if err != nil {
		return err
	}
	id, err := src.Current(cmdContext(cmd))
	if err != nil {
		return err
	}

	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"identity":  id.String(),
			"guest":     id.IsGuest(),
			"file":      src.Path(),
			"backend":   historyBackend(id),
			"remoteUrl": cfg.Remote.BaseURL,
		})
	}

	out := cmd.OutOrStdout()
	if id.IsGuest() {
		fmt.Fprintln(out, "Listening as guest (history kept locally)")
	} else {
		fmt.Fprintf(out, "Signed in as %s (history: %s)\n", id, historyBackend(id))
	}
	if Verbose() {
		fmt.Fprintf(out, "  identity file: %s\n", src.Path())
	}
	return nil
}

func runIdentityLogin(cmd *cobra.Command, args []string) error {
	src, err := identityFile()
	if err != nil {
		return err
	}

	var value string
	if len(args) == 1 {
		value = args[0]
	} else {
		current, _ := src.Current(cmdContext(cmd))
		prompted, err := wizard.NewInteractive().PromptIdentity(current)
		if err != nil {
			return err
		}
		if prompted == "" {
			return encerr.WithSuggestion(errors.New("no user id given"),
				"Pass the user id, e.g. 'encore identity login alice'")
		}
		value = prompted.String()
	}

	if err := wizard.ValidateIdentity(value); err != nil {
		return err
	}
	id := core.NormalizeIdentity(value)
	if err := src.Set(id); err != nil {
		return err
	}
	logger.Debug().Str("identity", id.String()).Str("file", src.Path()).Msg("signed in")

	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]string{
			"status":   "signed_in",
			"identity": id.String(),
			"backend":  historyBackend(id),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", id)
	if cfg.Remote.BaseURL == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), encerr.GetSuggestion(encerr.ErrRemoteDisabled))
	}
	return nil
}

func runIdentityLogout(cmd *cobra.Command, args []string) error {
	src, err := identityFile()
	if err != nil {
		return err
	}
	previous, _ := src.Current(cmdContext(cmd))
	if err := src.Clear(); err != nil {
		return err
	}

	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]string{
			"status":   "signed_out",
			"previous": previous.String(),
		})
	}
	if previous.IsGuest() {
		fmt.Fprintln(cmd.OutOrStdout(), "Already listening as guest")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed out %s, now listening as guest\n", previous)
	return nil
}

// historyBackend names where id's history lives.
func historyBackend(id core.Identity) string {
	if id.IsGuest() || cfg.Remote.BaseURL == "" {
		return string(core.BackendLocal)
	}
	return cfg.Remote.BaseURL
}
