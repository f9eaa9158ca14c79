package identity

import (
	"context"
	"sync"
	"time"

	"github.com/tessro/encore/internal/core"
)

// Change is emitted when the current identity changes. The first change of a
// watcher has an empty Previous.
type Change struct {
	Previous core.Identity
	Current  core.Identity
	At       time.Time
}

// Watcher polls a Source and emits a Change whenever the identity differs
// from the last one seen.
type Watcher struct {
	source   Source
	interval time.Duration
	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once
	onError  func(error)
}

// NewWatcher creates a watcher polling source every interval.
func NewWatcher(source Source, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		source:   source,
		interval: interval,
		changes:  make(chan Change, 4),
		done:     make(chan struct{}),
	}
}

// OnError sets a callback for poll failures. Failed polls are skipped.
func (w *Watcher) OnError(fn func(error)) {
	w.onError = fn
}

// Changes returns the channel of identity changes. It is closed when Start
// returns.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start polls until ctx is cancelled or Stop is called. The initial identity
// is always emitted.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.changes)

	var prev core.Identity
	var seen bool

	poll := func() bool {
		curr, err := w.source.Current(ctx)
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			return true
		}
		if seen && curr == prev {
			return true
		}

		change := Change{Previous: prev, Current: curr, At: time.Now()}
		// Identity changes must not be dropped, so this send blocks.
		select {
		case w.changes <- change:
		case <-ctx.Done():
			return false
		case <-w.done:
			return false
		}
		prev, seen = curr, true
		return true
	}

	if !poll() {
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.C:
			if !poll() {
				return ctx.Err()
			}
		}
	}
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}
