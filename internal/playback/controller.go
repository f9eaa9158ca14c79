// Package playback owns the single active audio resource and the playback
// session state machine.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tessro/encore/internal/audio"
	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
)

// DefaultGraceDelay is the pause between releasing one resource and acquiring
// the next. It is skipped when nothing was released.
const DefaultGraceDelay = 100 * time.Millisecond

// ErrSuperseded is returned by Play when a newer Play or a Stop cancelled the
// acquisition before it finished.
var ErrSuperseded = errors.New("playback superseded by a newer request")

// Recorder records a successful play. Errors are logged by the controller and
// never affect playback.
type Recorder interface {
	RecordPlay(ctx context.Context, song core.Song, identity core.Identity) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, song core.Song, identity core.Identity) error

// RecordPlay calls f.
func (f RecorderFunc) RecordPlay(ctx context.Context, song core.Song, identity core.Identity) error {
	return f(ctx, song, identity)
}

// Identities reports the identity history should be recorded under.
type Identities interface {
	Current(ctx context.Context) (core.Identity, error)
}

// Controller drives at most one audio resource at a time. Create one per
// process with New and share it by reference.
type Controller struct {
	acquirer   audio.Acquirer
	recorder   Recorder
	identities Identities
	locate     func(filename string) string
	grace      time.Duration
	recordTTL  time.Duration
	logger     zerolog.Logger

	// lifecycle serialises every transition that touches the resource.
	lifecycle sync.Mutex

	mu         sync.Mutex
	session    core.Session
	resource   audio.Resource
	generation uint64
	cancelLoad context.CancelFunc
	subs       map[int]func(core.Session)
	nextSub    int

	records sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithGraceDelay sets the delay between release and acquisition. Zero disables it.
func WithGraceDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.grace = d
		}
	}
}

// WithLocator sets how a song filename becomes an audio locator.
func WithLocator(fn func(filename string) string) Option {
	return func(c *Controller) {
		c.locate = fn
	}
}

// WithBaseURL builds locators under the audio server at baseURL.
func WithBaseURL(baseURL string) Option {
	return WithLocator(func(filename string) string {
		return audio.Locator(baseURL, filename)
	})
}

// WithRecordTimeout bounds how long a history record may take.
func WithRecordTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.recordTTL = d
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// New creates a controller. recorder and identities may be nil; without an
// identity source plays are recorded for the guest identity.
func New(acquirer audio.Acquirer, recorder Recorder, identities Identities, opts ...Option) *Controller {
	c := &Controller{
		acquirer:   acquirer,
		recorder:   recorder,
		identities: identities,
		locate:     func(filename string) string { return filename },
		grace:      DefaultGraceDelay,
		recordTTL:  30 * time.Second,
		logger:     zerolog.Nop(),
		session:    core.Session{Status: core.StatusIdle},
		subs:       make(map[int]func(core.Session)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns a snapshot of the playback session.
func (c *Controller) Session() core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for session changes. The returned function cancels
// the subscription. fn must not call back into the controller synchronously.
func (c *Controller) Subscribe(fn func(core.Session)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Wait blocks until pending history records finish.
func (c *Controller) Wait() {
	c.records.Wait()
}

// Play starts song. Playing the current song again toggles between playing
// and paused.
func (c *Controller) Play(ctx context.Context, song core.Song) error {
	if err := song.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	cur := c.session
	if cur.Song != nil && cur.Song.Same(&song) && cur.Status == core.StatusLoading {
		c.mu.Unlock()
		return nil
	}
	if cur.Status == core.StatusLoading && c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.mu.Unlock()

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	cur = c.session
	gen := c.generation
	c.mu.Unlock()

	if cur.Song != nil && cur.Song.Same(&song) {
		switch cur.Status {
		case core.StatusPlaying:
			return c.pauseLocked(ctx, gen)
		case core.StatusPaused:
			return c.resumeLocked(ctx, gen)
		}
	}

	return c.startLocked(ctx, song)
}

// Pause pauses playback. It does nothing unless a song is playing.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Status != core.StatusPlaying {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	c.mu.Unlock()

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.pauseLocked(ctx, gen)
}

// Resume resumes playback. It does nothing unless a song is paused.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Status != core.StatusPaused {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	c.mu.Unlock()

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.resumeLocked(ctx, gen)
}

// Stop releases the active resource and resets the session to idle. It always
// succeeds; release failures are logged.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.mu.Unlock()

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stopLocked(ctx)
	return nil
}

func (c *Controller) startLocked(ctx context.Context, song core.Song) error {
	released := c.stopLocked(ctx)

	song = song.WithDefaults()
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.generation++
	gen := c.generation
	s := song
	c.session = core.Session{Song: &s, Status: core.StatusLoading, Generation: gen}
	c.cancelLoad = cancel
	snap, subs := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snap)

	if released && c.grace > 0 {
		timer := time.NewTimer(c.grace)
		select {
		case <-loadCtx.Done():
			timer.Stop()
			c.resetLocked(gen, nil)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrSuperseded
		case <-timer.C:
		}
	}

	log := c.logger.With().Str("filename", song.Filename).Uint64("generation", gen).Logger()
	locator := c.locate(song.Filename)

	res, err := c.acquirer.Acquire(loadCtx, locator)
	if err == nil && loadCtx.Err() != nil {
		// Acquired after being superseded.
		c.release(ctx, res, log)
		res, err = nil, loadCtx.Err()
	}
	if err != nil {
		if loadCtx.Err() != nil && ctx.Err() == nil {
			log.Debug().Msg("acquisition superseded")
			c.resetLocked(gen, nil)
			return ErrSuperseded
		}
		log.Error().Err(err).Str("locator", locator).Msg("failed to acquire audio resource")
		return c.failLocked(gen, err)
	}

	res.Subscribe(func(st audio.Status) {
		c.onStatus(gen, st)
	})

	if err := res.Play(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start playback")
		c.release(ctx, res, log)
		return c.failLocked(gen, err)
	}

	c.mu.Lock()
	c.resource = res
	c.cancelLoad = nil
	c.session.Status = core.StatusPlaying
	snap, subs = c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snap)

	log.Info().Msg("playback started")
	c.recordPlay(ctx, song)
	return nil
}

func (c *Controller) pauseLocked(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if c.generation != gen || c.session.Status != core.StatusPlaying || c.resource == nil {
		c.mu.Unlock()
		return nil
	}
	res := c.resource
	c.mu.Unlock()

	if err := res.Pause(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to pause")
		return fmt.Errorf("failed to pause: %w", err)
	}

	c.setStatus(gen, core.StatusPaused)
	return nil
}

func (c *Controller) resumeLocked(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if c.generation != gen || c.session.Status != core.StatusPaused || c.resource == nil {
		c.mu.Unlock()
		return nil
	}
	res := c.resource
	c.mu.Unlock()

	if err := res.Play(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to resume")
		return fmt.Errorf("failed to resume: %w", err)
	}

	c.setStatus(gen, core.StatusPlaying)
	return nil
}

// stopLocked releases any active resource and resets the session. Calling it
// on an idle session changes nothing. It reports whether a resource was
// released.
func (c *Controller) stopLocked(ctx context.Context) bool {
	c.mu.Lock()
	if c.resource == nil && c.session.Song == nil && c.session.Status == core.StatusIdle && c.session.LastError == nil {
		c.mu.Unlock()
		return false
	}
	res := c.resource
	c.resource = nil
	c.cancelLoad = nil
	c.generation++
	c.session = core.Session{Status: core.StatusIdle, Generation: c.generation}
	snap, subs := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()

	if res != nil {
		c.release(ctx, res, c.logger)
	}
	notify(subs, snap)
	return res != nil
}

// failLocked moves a failed load through Error to Idle and returns the error
// for the caller.
func (c *Controller) failLocked(gen uint64, err error) error {
	if !errors.Is(err, encerr.ErrAcquireFailed) {
		err = fmt.Errorf("%w: %v", encerr.ErrAcquireFailed, err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return err
	}
	c.session.Status = core.StatusError
	c.session.LastError = err
	snap, subs := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snap)

	c.resetLocked(gen, err)
	return err
}

// resetLocked returns a load that never produced a resource to Idle.
func (c *Controller) resetLocked(gen uint64, lastErr error) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.cancelLoad = nil
	c.session = core.Session{Status: core.StatusIdle, LastError: lastErr, Generation: gen}
	snap, subs := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snap)
}

func (c *Controller) setStatus(gen uint64, status core.Status) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.session.Status = status
	snap, subs := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snap)
}

// onStatus mirrors a resource update into the session. Updates from a
// resource that is no longer current are dropped.
func (c *Controller) onStatus(gen uint64, st audio.Status) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}

	duration := max(st.Duration, 0)
	position := max(st.Position, 0)
	// A zero duration means the length is unknown; position is not clamped.
	if duration > 0 && position > duration {
		position = duration
	}
	c.session.Position = position
	c.session.Duration = duration

	switch c.session.Status {
	case core.StatusPlaying, core.StatusPaused:
		if st.IsPlaying {
			c.session.Status = core.StatusPlaying
		} else {
			c.session.Status = core.StatusPaused
		}
	}

	finished := st.DidFinish && c.session.Status != core.StatusLoading
	if finished {
		c.session.Status = core.StatusFinished
	}
	snap, subs := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(subs, snap)

	if finished {
		go c.finish(gen)
	}
}

// finish tears down a resource that reported the end of its song.
func (c *Controller) finish(gen uint64) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	current := c.generation == gen
	c.mu.Unlock()
	if !current {
		return
	}

	c.logger.Debug().Uint64("generation", gen).Msg("playback finished")
	c.stopLocked(context.Background())
}

func (c *Controller) release(ctx context.Context, res audio.Resource, log zerolog.Logger) {
	if err := res.Release(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("failed to release audio resource")
	}
}

// recordPlay records song under the identity current now, in the background.
// A newer Play does not cancel it.
func (c *Controller) recordPlay(ctx context.Context, song core.Song) {
	if c.recorder == nil {
		return
	}

	identity := core.Guest
	if c.identities != nil {
		id, err := c.identities.Current(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to read identity, recording as guest")
		} else {
			identity = core.NormalizeIdentity(string(id))
		}
	}

	c.records.Add(1)
	go func() {
		defer c.records.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.recordTTL)
		defer cancel()
		if err := c.recorder.RecordPlay(rctx, song, identity); err != nil {
			c.logger.Warn().Err(err).
				Str("filename", song.Filename).
				Str("identity", identity.String()).
				Msg("failed to record play")
		}
	}()
}

func (c *Controller) snapshotLocked() core.Session {
	s := c.session
	if s.Song != nil {
		song := *s.Song
		s.Song = &song
	}
	return s
}

func (c *Controller) subscribersLocked() []func(core.Session) {
	subs := make([]func(core.Session), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(core.Session), s core.Session) {
	for _, fn := range subs {
		fn(s)
	}
}

var _ core.Player = (*Controller)(nil)
