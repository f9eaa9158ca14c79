package tail

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/encore/internal/core"
	"github.com/tessro/encore/internal/history"
)

var (
	songA = &core.Song{Filename: "a.mp3", Title: "Alpha", Artist: "Ann"}
	songB = &core.Song{Filename: "b.mp3", Title: "Beta", Artist: "Bob"}
)

type fakePlayer struct {
	mu      sync.Mutex
	session core.Session
	subs    []func(core.Session)
}

func (p *fakePlayer) Session() core.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *fakePlayer) set(s core.Session) {
	p.mu.Lock()
	p.session = s
	subs := append([]func(core.Session){}, p.subs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (p *fakePlayer) Subscribe(fn func(core.Session)) func() {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
	return func() {}
}

type fakeHistory struct {
	mu   sync.Mutex
	view history.View
}

func (h *fakeHistory) View() history.View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view
}

func (h *fakeHistory) set(v history.View) {
	h.mu.Lock()
	h.view = v
	h.mu.Unlock()
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestDiffSessions(t *testing.T) {
	w := NewWatcher(&fakePlayer{}, nil, time.Second)
	boom := errors.New("boom")

	tests := []struct {
		name string
		prev core.Session
		curr core.Session
		want []EventType
	}{
		{
			name: "start from idle",
			prev: core.Session{Status: core.StatusIdle},
			curr: core.Session{Song: songA, Status: core.StatusLoading, Generation: 1},
			want: []EventType{EventSongChange},
		},
		{
			name: "skip to another song",
			prev: core.Session{Song: songA, Status: core.StatusPlaying, Position: 10 * time.Second, Duration: time.Minute, Generation: 1},
			curr: core.Session{Song: songB, Status: core.StatusLoading, Generation: 3},
			want: []EventType{EventSongSkip, EventSongChange},
		},
		{
			name: "complete near the end",
			prev: core.Session{Song: songA, Status: core.StatusPlaying, Position: 58 * time.Second, Duration: time.Minute, Generation: 1},
			curr: core.Session{Status: core.StatusIdle, Generation: 2},
			want: []EventType{EventSongComplete},
		},
		{
			name: "finished status",
			prev: core.Session{Song: songA, Status: core.StatusFinished, Generation: 1},
			curr: core.Session{Status: core.StatusIdle, Generation: 2},
			want: []EventType{EventSongComplete},
		},
		{
			name: "pause",
			prev: core.Session{Song: songA, Status: core.StatusPlaying, Generation: 1},
			curr: core.Session{Song: songA, Status: core.StatusPaused, Generation: 1},
			want: []EventType{EventPause},
		},
		{
			name: "resume",
			prev: core.Session{Song: songA, Status: core.StatusPaused, Generation: 1},
			curr: core.Session{Song: songA, Status: core.StatusPlaying, Generation: 1},
			want: []EventType{EventResume},
		},
		{
			name: "failed load reports error only",
			prev: core.Session{Song: songA, Status: core.StatusLoading, Generation: 4},
			curr: core.Session{Status: core.StatusIdle, LastError: boom, Generation: 4},
			want: []EventType{EventError},
		},
		{
			name: "same error is not repeated",
			prev: core.Session{Status: core.StatusError, LastError: boom, Generation: 4},
			curr: core.Session{Status: core.StatusIdle, LastError: boom, Generation: 4},
			want: nil,
		},
		{
			name: "no change",
			prev: core.Session{Song: songA, Status: core.StatusPlaying, Generation: 1},
			curr: core.Session{Song: songA, Status: core.StatusPlaying, Position: time.Second, Generation: 1},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.diffSessions(&tt.prev, &tt.curr)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, types(got))
		})
	}
}

func TestDiffUsesObservedFinish(t *testing.T) {
	w := NewWatcher(&fakePlayer{}, nil, time.Second)
	w.observe(core.Session{Song: songA, Status: core.StatusFinished, Generation: 7})

	prev := core.Session{Song: songA, Status: core.StatusPlaying, Position: time.Second, Duration: time.Minute, Generation: 7}
	curr := core.Session{Status: core.StatusIdle, Generation: 8}
	assert.Equal(t, []EventType{EventSongComplete}, types(w.diffSessions(&prev, &curr)))
	assert.Empty(t, w.finished)
}

func TestWatcherEmitsEvents(t *testing.T) {
	player := &fakePlayer{session: core.Session{Song: songA, Status: core.StatusPlaying, Generation: 1}}
	hist := &fakeHistory{view: history.View{Identity: core.Guest}}
	w := NewWatcher(player, hist, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	next := func() Event {
		select {
		case e := <-w.Events():
			return e
		case <-time.After(2 * time.Second):
			require.FailNow(t, "timed out waiting for event")
			return Event{}
		}
	}

	assert.Equal(t, EventSongChange, next().Type)

	player.set(core.Session{Song: songA, Status: core.StatusPaused, Generation: 1})
	assert.Equal(t, EventPause, next().Type)

	hist.set(history.View{Identity: core.Guest, Records: []core.HistoryRecord{{ID: "1", Filename: "a.mp3"}}})
	e := next()
	assert.Equal(t, EventHistoryChange, e.Type)
	require.NotNil(t, e.History)
	assert.Len(t, e.History.Records, 1)

	w.Stop()
	for range w.Events() {
	}
}

func TestHashView(t *testing.T) {
	played := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := history.View{Identity: "alice", Records: []core.HistoryRecord{{ID: "1", Filename: "a.mp3", PlayedAt: played}}}
	b := history.View{Identity: "bob", Records: a.Records}
	c := history.View{Identity: "alice", Records: []core.HistoryRecord{{ID: "2", Filename: "a.mp3", PlayedAt: played}}}

	assert.Equal(t, hashView(a), hashView(a))
	assert.NotEqual(t, hashView(a), hashView(b))
	assert.NotEqual(t, hashView(a), hashView(c))
}

func TestFormatter(t *testing.T) {
	ts := time.Date(2025, 1, 1, 14, 30, 5, 0, time.Local)
	playing := &core.Session{Song: songA, Status: core.StatusPlaying, Position: 75 * time.Second, Duration: 3 * time.Minute}

	t.Run("line with emoji", func(t *testing.T) {
		f := NewFormatter()
		got := f.Format(Event{Type: EventSongChange, Timestamp: ts, Current: playing})
		assert.Equal(t, "🎵 Now playing: Ann - Alpha", got)
	})

	t.Run("timestamp without emoji", func(t *testing.T) {
		f := NewFormatter(WithEmoji(false), WithTimestamp(true))
		got := f.Format(Event{Type: EventPause, Timestamp: ts, Current: playing})
		assert.Equal(t, "14:30:05 Paused at 1:15", got)
	})

	t.Run("skip uses previous song", func(t *testing.T) {
		f := NewFormatter(WithEmoji(false))
		got := f.Format(Event{Type: EventSongSkip, Timestamp: ts, Previous: playing, Current: &core.Session{}})
		assert.Equal(t, "Skipped: Ann - Alpha at 1:15", got)
	})

	t.Run("error", func(t *testing.T) {
		f := NewFormatter(WithEmoji(false))
		got := f.Format(Event{Type: EventError, Current: &core.Session{LastError: errors.New("audio failed")}})
		assert.Equal(t, "Error: audio failed", got)
	})

	t.Run("history", func(t *testing.T) {
		f := NewFormatter(WithEmoji(false))
		view := &history.View{Identity: "alice", Records: []core.HistoryRecord{{Filename: "a.mp3", Title: "Alpha", PlayedAt: time.Now()}}}
		got := f.Format(Event{Type: EventHistoryChange, History: view})
		assert.True(t, strings.HasPrefix(got, "History: 1 song for alice (latest Alpha, "), got)
	})

	t.Run("template", func(t *testing.T) {
		f := NewFormatter(WithTemplate("{{.Type}}|{{.Title}}|{{.Position}}/{{.Duration}}|{{.Status}}"))
		got := f.Format(Event{Type: EventSongChange, Timestamp: ts, Current: playing})
		assert.Equal(t, "song_change|Alpha|1:15/3:00|playing", got)
	})

	t.Run("bad template falls back", func(t *testing.T) {
		f := NewFormatter(WithTemplate("{{.Nope"), WithEmoji(false))
		got := f.Format(Event{Type: EventResume})
		assert.Equal(t, "Resumed", got)
	})
}
