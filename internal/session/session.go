// Package session wires the playback controller, the history engine and the
// identity source into one object that the CLI and TUI share.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tessro/encore/internal/audio"
	"github.com/tessro/encore/internal/config"
	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/history"
	"github.com/tessro/encore/internal/identity"
	"github.com/tessro/encore/internal/playback"
	"github.com/tessro/encore/internal/remote"
	"github.com/tessro/encore/internal/store"
)

// Session owns every long-lived component of an encore process.
type Session struct {
	Player   *playback.Controller
	History  *history.Engine
	Store    store.Store
	Remote   *remote.Client
	Identity identity.Source

	cfg    *config.Config
	logger zerolog.Logger
}

type options struct {
	source   identity.Source
	acquirer audio.Acquirer
	store    store.Store
}

// Option customizes Open.
type Option func(*options)

// WithIdentitySource replaces the configured identity file.
func WithIdentitySource(src identity.Source) Option {
	return func(o *options) { o.source = src }
}

// WithAcquirer replaces the HTTP audio acquirer.
func WithAcquirer(a audio.Acquirer) Option {
	return func(o *options) { o.acquirer = a }
}

// WithStore replaces the configured local store. The session takes
// ownership and closes it.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// Open builds a session from cfg.
func Open(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	st := o.store
	if st == nil {
		var err error
		st, err = store.Open(cfg.Store, config.DataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
		}
	}

	src := o.source
	if src == nil {
		fs, err := identity.NewFileSource(cfg.Identity.File)
		if err != nil {
			st.Close()
			return nil, err
		}
		src = fs
	}

	s := &Session{
		Store:    st,
		Identity: src,
		cfg:      cfg,
		logger:   logger,
	}

	// A nil *remote.Client must not end up inside the interface.
	var rem history.Remote
	if cfg.Remote.BaseURL != "" {
		s.Remote = remote.New(cfg.Remote.BaseURL,
			remote.WithTimeout(cfg.Remote.TimeoutDuration()),
			remote.WithLogger(logger.With().Str("component", "remote").Logger()),
		)
		rem = s.Remote
	}

	s.History = history.New(st, rem,
		history.WithLocalCap(cfg.History.LocalCap),
		history.WithRemoteCap(cfg.History.RemoteCap),
		history.WithLogger(logger.With().Str("component", "history").Logger()),
	)

	acq := o.acquirer
	if acq == nil {
		acq = audio.NewHTTPAcquirer(
			audio.WithBitrate(cfg.Audio.BitrateKbps),
			audio.WithTickInterval(cfg.Audio.TickIntervalDuration()),
			audio.WithLogger(logger.With().Str("component", "audio").Logger()),
		)
	}

	s.Player = playback.New(acq, recorder{s.History}, src,
		playback.WithBaseURL(cfg.Audio.BaseURL),
		playback.WithGraceDelay(cfg.Audio.GraceDelayDuration()),
		playback.WithLogger(logger.With().Str("component", "playback").Logger()),
	)
	return s, nil
}

// recorder adapts the history engine to the controller's Recorder.
type recorder struct {
	engine *history.Engine
}

func (r recorder) RecordPlay(ctx context.Context, song core.Song, id core.Identity) error {
	return r.engine.Record(ctx, song, id).Err()
}

// Config returns the configuration the session was opened with.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// CurrentIdentity reads the identity source, falling back to guest on error.
func (s *Session) CurrentIdentity(ctx context.Context) core.Identity {
	id, err := s.Identity.Current(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read identity, using guest")
		return core.Guest
	}
	return id
}

// Load loads the history of the current identity into the view.
func (s *Session) Load(ctx context.Context) history.Result {
	return s.History.Load(ctx, s.CurrentIdentity(ctx))
}

// Backend names where signed-in history is kept.
func (s *Session) Backend() string {
	if s.Remote == nil {
		return "local"
	}
	return s.Remote.BaseURL()
}

// Follow watches the identity source and reloads history whenever the
// identity changes. It returns when ctx is cancelled.
func (s *Session) Follow(ctx context.Context) error {
	w := identity.NewWatcher(s.Identity, s.cfg.Identity.PollIntervalDuration())
	w.OnError(func(err error) {
		s.logger.Warn().Err(err).Msg("identity poll failed")
	})

	errc := make(chan error, 1)
	go func() { errc <- w.Start(ctx) }()

	for change := range w.Changes() {
		res := s.History.Load(ctx, change.Current)
		ev := s.logger.Debug()
		if res.Kind != history.Ok {
			ev = s.logger.Warn().AnErr("reason", res.Reason)
		}
		ev.Str("identity", change.Current.String()).
			Str("previous", change.Previous.String()).
			Stringer("result", res.Kind).
			Int("records", len(res.Records)).
			Msg("identity changed, history reloaded")
	}

	err := <-errc
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops playback, waits for pending history writes and closes the
// store.
func (s *Session) Close() error {
	ctx := context.Background()
	stopErr := s.Player.Stop(ctx)
	s.Player.Wait()
	return errors.Join(stopErr, s.Store.Close())
}
