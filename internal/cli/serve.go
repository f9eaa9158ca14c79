package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tessro/encore/internal/server"
)

var (
	serveAddr     string
	serveDatabase string
	serveKeep     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remote history service",
	Long: `Run the HTTP history service that signed-in listeners sync with.

The database is a sqlite file path, a postgres:// URL, or ":memory:".
Each user's history is capped; a cron job prunes anything over the cap.

Routes:
  GET    /health
  GET    /api/recently-played/:userId
  POST   /api/recently-played
  DELETE /api/recently-played/:userId/:filename`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().StringVar(&serveDatabase, "database", "", "database path or URL (default from server.database)")
	serveCmd.Flags().IntVar(&serveKeep, "keep", 0, "records kept per user (default from history.remote_cap)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	srvCfg := cfg.Server
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	if serveDatabase != "" {
		srvCfg.Database = serveDatabase
	}
	keep := cfg.History.RemoteCap
	if serveKeep > 0 {
		keep = serveKeep
	}
	if keep <= 0 {
		keep = server.DefaultKeep
	}

	if Verbose() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signalContext(cmdContext(cmd))
	defer cancel()

	repo, err := server.OpenRepository(ctx, srvCfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	log := logger.With().Str("component", "server").Logger()
	log.Info().
		Str("database", srvCfg.Database).
		Int("keep", keep).
		Str("cleanup", srvCfg.CleanupSchedule).
		Msg("starting history service")

	srv := server.New(srvCfg, repo, log, server.WithKeep(keep))
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("history service failed: %w", err)
	}
	return nil
}
