package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrReleased is returned by Play on a released stream.
var ErrReleased = errors.New("audio resource already released")

// Stream is a clock-driven Resource. It advances its position while playing
// and reports DidFinish once the position reaches the duration. A zero
// duration means the length is unknown and the stream never finishes on its
// own.
type Stream struct {
	mu       sync.Mutex
	duration time.Duration
	position time.Duration
	playing  bool
	finished bool
	released bool
	started  bool
	last     time.Time
	tick     time.Duration
	subs     []func(Status)
	done     chan struct{}
	now      func() time.Time
}

// NewStream creates a paused stream of the given duration.
func NewStream(duration, tick time.Duration) *Stream {
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	return &Stream{
		duration: duration,
		tick:     tick,
		done:     make(chan struct{}),
		now:      time.Now,
	}
}

// Subscribe registers fn for status updates.
func (s *Stream) Subscribe(fn func(Status)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Play starts or resumes the stream.
func (s *Stream) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrReleased
	}
	if s.playing || s.finished {
		s.mu.Unlock()
		return nil
	}
	s.playing = true
	s.last = s.now()
	if !s.started {
		s.started = true
		go s.run()
	}
	st, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, st)
	return nil
}

// Pause stops advancing the position.
func (s *Stream) Pause(ctx context.Context) error {
	s.mu.Lock()
	if s.released || !s.playing {
		s.mu.Unlock()
		return nil
	}
	s.advanceLocked()
	s.playing = false
	st, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, st)
	return nil
}

// Release stops the stream. No further updates are delivered.
func (s *Stream) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.playing = false
	s.subs = nil
	close(s.done)
	return nil
}

// Status returns the current status.
func (s *Stream) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.advanceLocked()
	}
	st, _ := s.snapshotLocked()
	return st
}

func (s *Stream) run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.playing {
				s.mu.Unlock()
				continue
			}
			s.advanceLocked()
			st, subs := s.snapshotLocked()
			s.mu.Unlock()

			notify(subs, st)
		}
	}
}

func (s *Stream) advanceLocked() {
	now := s.now()
	s.position += now.Sub(s.last)
	s.last = now
	if s.duration > 0 && s.position >= s.duration {
		s.position = s.duration
		s.playing = false
		s.finished = true
	}
}

func (s *Stream) snapshotLocked() (Status, []func(Status)) {
	st := Status{
		Position:  s.position,
		Duration:  s.duration,
		IsPlaying: s.playing,
		DidFinish: s.finished,
	}
	subs := make([]func(Status), len(s.subs))
	copy(subs, s.subs)
	return st, subs
}

func notify(subs []func(Status), st Status) {
	for _, fn := range subs {
		fn(st)
	}
}
