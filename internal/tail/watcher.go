// Package tail turns playback session and history changes into a stream of
// events for follow mode.
package tail

import (
	"context"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/history"
)

// EventType represents the type of playback event.
type EventType int

const (
	EventSongChange EventType = iota
	EventSongComplete
	EventSongSkip
	EventPause
	EventResume
	EventError
	EventHistoryChange
)

// Event represents a playback or history change.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Previous  *core.Session
	Current   *core.Session
	History   *history.View
}

// SessionSource reports the playback session.
type SessionSource interface {
	Session() core.Session
}

// HistorySource reports the history view.
type HistorySource interface {
	View() history.View
}

// subscriber is implemented by players that push session updates.
type subscriber interface {
	Subscribe(fn func(core.Session)) func()
}

// Watcher polls a player for state changes and emits events. Players that
// push updates wake the watcher early, so short-lived states such as
// Finished are not missed.
type Watcher struct {
	player   SessionSource
	history  HistorySource
	interval time.Duration
	events   chan Event
	done     chan struct{}
	wake     chan struct{}
	now      func() time.Time

	mu       sync.Mutex
	finished map[uint64]bool
}

// NewWatcher creates a new state watcher. history may be nil.
func NewWatcher(player SessionSource, hist HistorySource, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = time.Second
	}
	return &Watcher{
		player:   player,
		history:  hist,
		interval: interval,
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
		wake:     make(chan struct{}, 1),
		now:      time.Now,
		finished: make(map[uint64]bool),
	}
}

// Events returns the channel of events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins polling for state changes.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.events)

	if sub, ok := w.player.(subscriber); ok {
		cancel := sub.Subscribe(w.observe)
		defer cancel()
	}

	prev := w.player.Session()
	var prevHash uint64
	if w.history != nil {
		prevHash = hashView(w.history.View())
	}
	if prev.HasSong() {
		w.emit(Event{Type: EventSongChange, Timestamp: w.now(), Current: &prev})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.C:
		case <-w.wake:
		}

		curr := w.player.Session()
		for _, e := range w.diffSessions(&prev, &curr) {
			w.emit(e)
		}
		prev = curr

		if w.history != nil {
			view := w.history.View()
			if h := hashView(view); h != prevHash {
				prevHash = h
				w.emit(Event{Type: EventHistoryChange, Timestamp: w.now(), History: &view})
			}
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
}

func (w *Watcher) emit(e Event) {
	select {
	case w.events <- e:
	default:
		// Drop event if channel is full
	}
}

// observe runs on the player's notification path and must not block.
func (w *Watcher) observe(s core.Session) {
	if s.Status == core.StatusFinished {
		w.mu.Lock()
		w.finished[s.Generation] = true
		w.mu.Unlock()
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) sawFinished(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ok := w.finished[gen]
	delete(w.finished, gen)
	return ok
}

// diffSessions compares two snapshots and returns detected events.
func (w *Watcher) diffSessions(prev, curr *core.Session) []Event {
	now := w.now()
	var events []Event

	failed := curr.LastError != nil &&
		(prev.LastError == nil || prev.Generation != curr.Generation)

	if songChanged(prev, curr) {
		finished := w.sawFinished(prev.Generation)
		switch {
		case prev.HasSong() && (finished || wasCompleted(prev)):
			events = append(events, Event{Type: EventSongComplete, Timestamp: now, Previous: prev, Current: curr})
		case prev.HasSong() && !(failed && !curr.HasSong()):
			events = append(events, Event{Type: EventSongSkip, Timestamp: now, Previous: prev, Current: curr})
		}
		if curr.HasSong() {
			events = append(events, Event{Type: EventSongChange, Timestamp: now, Previous: prev, Current: curr})
		}
	}

	if prev.Generation == curr.Generation {
		if prev.Status == core.StatusPlaying && curr.Status == core.StatusPaused {
			events = append(events, Event{Type: EventPause, Timestamp: now, Previous: prev, Current: curr})
		} else if prev.Status == core.StatusPaused && curr.Status == core.StatusPlaying {
			events = append(events, Event{Type: EventResume, Timestamp: now, Previous: prev, Current: curr})
		}
	}

	if failed {
		events = append(events, Event{Type: EventError, Timestamp: now, Previous: prev, Current: curr})
	}

	return events
}

// songChanged returns true if the current song changed.
func songChanged(prev, curr *core.Session) bool {
	if prev.Song == nil && curr.Song == nil {
		return false
	}
	if prev.Song == nil || curr.Song == nil {
		return true
	}
	return !prev.Song.Same(curr.Song) || prev.Generation != curr.Generation
}

// wasCompleted returns true if the song likely completed naturally.
func wasCompleted(s *core.Session) bool {
	if s.Status == core.StatusFinished {
		return true
	}
	if s.Duration == 0 {
		return false
	}
	// Consider completed if progress is >= 95% of duration
	return s.ProgressPercent() >= 95
}

type recordKey struct {
	ID       string
	Filename string
	PlayedAt int64
}

type viewKey struct {
	Identity string
	Records  []recordKey
}

// hashView fingerprints a history view.
func hashView(v history.View) uint64 {
	key := viewKey{Identity: v.Identity.String(), Records: make([]recordKey, len(v.Records))}
	for i, r := range v.Records {
		key.Records[i] = recordKey{ID: r.ID, Filename: r.Filename, PlayedAt: r.PlayedAt.UnixNano()}
	}
	h, err := hashstructure.Hash(key, hashstructure.FormatV2, nil)
	if err != nil {
		return 0
	}
	return h
}
