package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/encore/internal/config"
)

const (
	shutdownTimeout = 5 * time.Second

	limiterSweepInterval = 10 * time.Minute
	limiterIdle          = 30 * time.Minute
)

// Server runs the history service.
type Server struct {
	cfg     config.ServerConfig
	repo    Repository
	handler *Handler
	cleanup *Cleanup
	limiter *RateLimiter
	logger  zerolog.Logger
	router  *gin.Engine
}

// New builds a server around repo.
func New(cfg config.ServerConfig, repo Repository, logger zerolog.Logger, opts ...HandlerOption) *Server {
	opts = append([]HandlerOption{WithHandlerLogger(logger)}, opts...)
	h := NewHandler(repo, opts...)
	s := &Server{
		cfg:     cfg,
		repo:    repo,
		handler: h,
		cleanup: NewCleanup(repo, cfg.CleanupSchedule, h.keep, logger),
		logger:  logger,
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
		s.cleanup.Every(limiterSweepInterval, s.sweepLimiter)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) sweepLimiter() {
	if n := s.limiter.Sweep(limiterIdle); n > 0 {
		s.logger.Debug().Int("dropped", n).Int("clients", s.limiter.Len()).Msg("rate limiter swept")
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	// Filenames may contain escaped slashes.
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(Recovery(s.logger), RequestID(), AccessLog(s.logger))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware())
	}
	s.handler.Register(r)
	return r
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully and stops the cleanup job.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.cleanup.Start(); err != nil {
		ln.Close()
		return err
	}
	defer s.cleanup.Stop()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("history service listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("shutting down history service")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
