package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tessro/encore/internal/config"
	encerr "github.com/tessro/encore/internal/errors"
	"github.com/tessro/encore/internal/logging"
	"github.com/tessro/encore/internal/session"
)

var (
	cfgFile string
	jsonOut bool
	verbose bool

	cfg       *config.Config
	logger    = zerolog.Nop()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "encore",
	Short: "Play songs and keep a recently-played history",
	Long: `Encore plays songs from an audio server and remembers what you listened to.

History is kept per listener: signed-in listeners sync with a remote history
service, guests keep a short local list.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogger()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.encorerc)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initConfig(cmd *cobra.Command) error {
	var err error
	switch {
	case cfgFile != "" && cmd == configInitCmd && !fileExists(cfgFile):
		// 'config init' creates the file it was pointed at.
		cfg = config.Default()
	case cfgFile != "":
		cfg, err = config.LoadFrom(cfgFile)
	default:
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", encerr.ErrInvalidConfig, err)
	}

	logCfg := cfg.Log
	if verbose {
		logCfg.Level = "debug"
	}
	l, closer, err := logging.New(logCfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger = l
	logCloser = closer

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func closeLogger() error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}

// openSession builds the shared playback and history session.
func openSession(opts ...session.Option) (*session.Session, error) {
	return session.Open(cfg, logger, opts...)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_ = closeLogger()
		fmt.Fprintln(os.Stderr, encerr.Format(err))
		os.Exit(1)
	}
}

// Config returns the loaded configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the logger built from the loaded configuration.
func Logger() zerolog.Logger {
	return logger
}

// JSONOutput returns true if JSON output is requested.
func JSONOutput() bool {
	return jsonOut
}

// Verbose returns true if verbose output is requested.
func Verbose() bool {
	return verbose
}
