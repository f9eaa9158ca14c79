package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
	"github.com/tessro/encore/internal/store"
)

// Default capacities.
const (
	DefaultLocalCap  = 10
	DefaultRemoteCap = 20
)

// Engine owns the in-memory history view and mediates between the local store
// and the remote service.
type Engine struct {
	local     store.Store
	remote    Remote
	localCap  int
	remoteCap int
	now       func() time.Time
	idFunc    func() string
	logger    zerolog.Logger

	locks partitionLocks

	mu       sync.RWMutex
	identity core.Identity
	view     []core.HistoryRecord
	subs     map[int]func(View)
	nextSub  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocalCap sets the capacity of local partitions and of the view after a record.
func WithLocalCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.localCap = n
		}
	}
}

// WithRemoteCap sets the maximum number of records accepted from the remote.
func WithRemoteCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.remoteCap = n
		}
	}
}

// WithClock sets the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDFunc sets the record id generator.
func WithIDFunc(f func() string) Option {
	return func(e *Engine) {
		e.idFunc = f
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine. remote may be nil.
func New(local store.Store, remote Remote, opts ...Option) *Engine {
	e := &Engine{
		local:     local,
		remote:    remote,
		localCap:  DefaultLocalCap,
		remoteCap: DefaultRemoteCap,
		now:       time.Now,
		logger:    zerolog.Nop(),
		identity:  core.Guest,
		view:      []core.HistoryRecord{},
		subs:      make(map[int]func(View)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HasRemote reports whether a remote service is configured.
func (e *Engine) HasRemote() bool {
	return e.remote != nil
}

// Record adds song to identity's history.
func (e *Engine) Record(ctx context.Context, song core.Song, identity core.Identity) Result {
	identity = core.NormalizeIdentity(string(identity))
	if err := song.Validate(); err != nil {
		return failResult(e.View().Records, err, core.BackendNone)
	}

	unlock := e.locks.lock(identity)
	defer unlock()

	rec := core.NewHistoryRecord(song, identity, e.now(), e.idFunc)
	log := e.logger.With().Str("identity", identity.String()).Str("filename", rec.Filename).Logger()

	if !identity.IsGuest() {
		err := e.remoteUpsert(ctx, identity, rec)
		if err == nil {
			records := e.updateView(identity, func(view []core.HistoryRecord) []core.HistoryRecord {
				return core.Prepend(view, rec, e.localCap)
			})
			log.Debug().Msg("recorded play remotely")
			return okResult(records, core.BackendRemote)
		}
		log.Warn().Err(err).Msg("remote record failed, using local fallback")

		records, lerr := e.prependLocal(ctx, identity, rec)
		if lerr != nil {
			log.Warn().Err(lerr).Msg("local fallback record failed")
			return failResult(e.viewFor(identity), lerr, core.BackendLocal)
		}
		e.setView(identity, records)
		return fallbackResult(records, err)
	}

	records, err := e.prependLocal(ctx, identity, rec)
	if err != nil {
		log.Warn().Err(err).Msg("local record failed")
		return failResult(e.viewFor(identity), err, core.BackendLocal)
	}
	e.setView(identity, records)
	log.Debug().Int("count", len(records)).Msg("recorded play locally")
	return okResult(records, core.BackendLocal)
}

// Load replaces the view with identity's history.
func (e *Engine) Load(ctx context.Context, identity core.Identity) Result {
	identity = core.NormalizeIdentity(string(identity))
	e.switchIdentity(identity)

	unlock := e.locks.lock(identity)
	defer unlock()

	log := e.logger.With().Str("identity", identity.String()).Logger()
	key := store.KeyFor(identity)

	if !identity.IsGuest() {
		records, err := e.remoteFetch(ctx, identity)
		if err == nil {
			if len(records) > e.remoteCap {
				records = records[:e.remoteCap]
			}
			e.setView(identity, records)
			log.Debug().Int("count", len(records)).Msg("loaded history from remote")
			return okResult(copyRecords(records), core.BackendRemote)
		}
		log.Warn().Err(err).Msg("remote load failed, using local fallback")

		records, lerr := readPartition(ctx, e.local, key)
		if lerr != nil {
			log.Warn().Err(lerr).Msg("local fallback load failed")
			e.setView(identity, nil)
			return failResult([]core.HistoryRecord{}, lerr, core.BackendLocal)
		}
		e.setView(identity, records)
		return fallbackResult(copyRecords(records), err)
	}

	records, err := readPartition(ctx, e.local, key)
	if err != nil {
		log.Warn().Err(err).Msg("local load failed")
		e.setView(identity, nil)
		return failResult([]core.HistoryRecord{}, err, core.BackendLocal)
	}
	e.setView(identity, records)
	log.Debug().Int("count", len(records)).Msg("loaded history locally")
	return okResult(copyRecords(records), core.BackendLocal)
}

// Remove deletes filename from identity's history.
func (e *Engine) Remove(ctx context.Context, filename string, identity core.Identity) Result {
	identity = core.NormalizeIdentity(string(identity))

	unlock := e.locks.lock(identity)
	defer unlock()

	log := e.logger.With().Str("identity", identity.String()).Str("filename", filename).Logger()

	if !identity.IsGuest() {
		err := e.remoteDelete(ctx, identity, filename)
		if err == nil {
			records := e.updateView(identity, func(view []core.HistoryRecord) []core.HistoryRecord {
				return core.Without(view, filename)
			})
			log.Debug().Msg("removed remotely")
			return okResult(records, core.BackendRemote)
		}
		log.Warn().Err(err).Msg("remote remove failed, using local fallback")

		records, lerr := e.filterLocal(ctx, identity, filename)
		if lerr != nil {
			log.Warn().Err(lerr).Msg("local fallback remove failed")
			return failResult(e.viewFor(identity), lerr, core.BackendLocal)
		}
		e.setView(identity, records)
		return fallbackResult(records, err)
	}

	records, err := e.filterLocal(ctx, identity, filename)
	if err != nil {
		log.Warn().Err(err).Msg("local remove failed")
		return failResult(e.viewFor(identity), err, core.BackendLocal)
	}
	e.setView(identity, records)
	log.Debug().Msg("removed locally")
	return okResult(records, core.BackendLocal)
}

// Clear erases identity's local partition and empties the view. Remote
// history is left alone and comes back on the next Load.
func (e *Engine) Clear(ctx context.Context, identity core.Identity) Result {
	identity = core.NormalizeIdentity(string(identity))

	unlock := e.locks.lock(identity)
	defer unlock()

	e.setView(identity, nil)

	if err := e.local.Remove(ctx, store.KeyFor(identity)); err != nil {
		e.logger.Warn().Err(err).Str("identity", identity.String()).Msg("local clear failed")
		return failResult([]core.HistoryRecord{}, err, core.BackendLocal)
	}
	e.logger.Debug().Str("identity", identity.String()).Msg("cleared local history")
	return okResult([]core.HistoryRecord{}, core.BackendLocal)
}

// View returns a copy of the current view.
func (e *Engine) View() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return View{Identity: e.identity, Records: copyRecords(e.view)}
}

// Identity returns the identity the view belongs to.
func (e *Engine) Identity() core.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identity
}

// Subscribe registers fn to receive the view after every change. The returned
// function cancels the subscription.
func (e *Engine) Subscribe(fn func(View)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) remoteUpsert(ctx context.Context, identity core.Identity, rec core.HistoryRecord) error {
	if e.remote == nil {
		return encerr.ErrRemoteDisabled
	}
	return e.remote.Upsert(ctx, identity.String(), rec)
}

func (e *Engine) remoteFetch(ctx context.Context, identity core.Identity) ([]core.HistoryRecord, error) {
	if e.remote == nil {
		return nil, encerr.ErrRemoteDisabled
	}
	records, err := e.remote.Fetch(ctx, identity.String())
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []core.HistoryRecord{}
	}
	return records, nil
}

func (e *Engine) remoteDelete(ctx context.Context, identity core.Identity, filename string) error {
	if e.remote == nil {
		return encerr.ErrRemoteDisabled
	}
	return e.remote.Delete(ctx, identity.String(), filename)
}

// prependLocal runs read, dedupe, prepend, truncate and write on identity's
// local partition.
func (e *Engine) prependLocal(ctx context.Context, identity core.Identity, rec core.HistoryRecord) ([]core.HistoryRecord, error) {
	key := store.KeyFor(identity)
	records, err := readPartition(ctx, e.local, key)
	if err != nil {
		return nil, err
	}
	records = core.Prepend(records, rec, e.localCap)
	if err := writePartition(ctx, e.local, key, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (e *Engine) filterLocal(ctx context.Context, identity core.Identity, filename string) ([]core.HistoryRecord, error) {
	key := store.KeyFor(identity)
	records, err := readPartition(ctx, e.local, key)
	if err != nil {
		return nil, err
	}
	filtered := core.Without(records, filename)
	if len(filtered) != len(records) {
		if err := writePartition(ctx, e.local, key, filtered); err != nil {
			return nil, err
		}
	}
	return filtered, nil
}

// switchIdentity points the view at identity, emptying it when the identity
// changes so one identity's records are never shown under another.
func (e *Engine) switchIdentity(identity core.Identity) {
	e.mu.Lock()
	if e.identity == identity {
		e.mu.Unlock()
		return
	}
	e.identity = identity
	e.view = []core.HistoryRecord{}
	v, subs := e.snapshotLocked()
	e.mu.Unlock()

	notify(subs, v)
}

// setView replaces the view if it still belongs to identity.
func (e *Engine) setView(identity core.Identity, records []core.HistoryRecord) {
	e.updateView(identity, func([]core.HistoryRecord) []core.HistoryRecord {
		return records
	})
}

// updateView applies fn to the view if it belongs to identity and returns the
// new records. When the view belongs to another identity it is left alone and
// fn is applied to an empty list instead.
func (e *Engine) updateView(identity core.Identity, fn func([]core.HistoryRecord) []core.HistoryRecord) []core.HistoryRecord {
	e.mu.Lock()
	if e.identity != identity {
		e.mu.Unlock()
		e.logger.Debug().
			Str("identity", identity.String()).
			Str("view", e.Identity().String()).
			Msg("view belongs to another identity, not updating")
		return copyRecords(fn([]core.HistoryRecord{}))
	}
	next := copyRecords(fn(e.view))
	e.view = next
	v, subs := e.snapshotLocked()
	e.mu.Unlock()

	notify(subs, v)
	return copyRecords(next)
}

func (e *Engine) viewFor(identity core.Identity) []core.HistoryRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.identity != identity {
		return []core.HistoryRecord{}
	}
	return copyRecords(e.view)
}

func (e *Engine) snapshotLocked() (View, []func(View)) {
	v := View{Identity: e.identity, Records: copyRecords(e.view)}
	subs := make([]func(View), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return v, subs
}

func notify(subs []func(View), v View) {
	for _, fn := range subs {
		fn(v)
	}
}

func copyRecords(records []core.HistoryRecord) []core.HistoryRecord {
	out := make([]core.HistoryRecord, len(records))
	copy(out, records)
	return out
}
