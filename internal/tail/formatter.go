package tail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tessro/encore/internal/core"
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithTemplate sets a custom format template.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if tmpl != "" {
			t, err := template.New("format").Parse(tmpl)
			if err == nil {
				f.template = t
			}
		}
	}
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		showEmoji:     true,
		showTimestamp: false,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Emoji reports whether emoji output is enabled.
func (f *Formatter) Emoji() bool {
	return f.showEmoji
}

// Format formats an event as a string.
func (f *Formatter) Format(e Event) string {
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

func (f *Formatter) formatLine(e Event) string {
	var parts []string

	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}
	if f.showEmoji {
		parts = append(parts, eventEmoji(e.Type))
	}
	parts = append(parts, f.eventDescription(e))

	return strings.Join(parts, " ")
}

func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:      eventTypeName(e.Type),
		Emoji:     eventEmoji(e.Type),
		Timestamp: e.Timestamp,
		Time:      e.Timestamp.Format("15:04:05"),
	}

	s := e.Current
	if e.Type == EventSongComplete || e.Type == EventSongSkip {
		s = e.Previous
	}
	if s != nil {
		data.Status = s.Status.String()
		data.Position = formatDuration(s.Position)
		data.Duration = formatDuration(s.Duration)
		if s.Song != nil {
			data.Filename = s.Song.Filename
			data.Title = s.Song.DisplayTitle()
			data.Artist = s.Song.Artist
			data.Language = s.Song.Language
			data.Emotion = s.Song.EmotionString()
		}
		if s.LastError != nil {
			data.Error = s.LastError.Error()
		}
	}
	if e.History != nil {
		data.Identity = e.History.Identity.String()
		data.Count = len(e.History.Records)
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

type templateData struct {
	Type      string
	Emoji     string
	Timestamp time.Time
	Time      string
	Filename  string
	Title     string
	Artist    string
	Language  string
	Emotion   string
	Status    string
	Position  string
	Duration  string
	Error     string
	Identity  string
	Count     int
}

// eventDescription returns a human-readable description of the event.
func (f *Formatter) eventDescription(e Event) string {
	switch e.Type {
	case EventSongChange:
		if e.Current.HasSong() {
			return "Now playing: " + songLabel(e.Current.Song)
		}
		return "Song changed"

	case EventSongComplete:
		if e.Previous.HasSong() {
			return "Finished: " + songLabel(e.Previous.Song)
		}
		return "Song completed"

	case EventSongSkip:
		if e.Previous.HasSong() {
			return fmt.Sprintf("Skipped: %s at %s", songLabel(e.Previous.Song), formatDuration(e.Previous.Position))
		}
		return "Song skipped"

	case EventPause:
		if e.Current != nil {
			return "Paused at " + formatDuration(e.Current.Position)
		}
		return "Paused"

	case EventResume:
		return "Resumed"

	case EventError:
		if e.Current != nil && e.Current.LastError != nil {
			return "Error: " + e.Current.LastError.Error()
		}
		return "Playback error"

	case EventHistoryChange:
		if e.History != nil {
			desc := fmt.Sprintf("History: %d %s for %s", len(e.History.Records),
				plural(len(e.History.Records), "song", "songs"), e.History.Identity)
			if len(e.History.Records) > 0 {
				latest := e.History.Records[0]
				desc += fmt.Sprintf(" (latest %s, %s)", latest.Song().DisplayTitle(), humanize.Time(latest.PlayedAt))
			}
			return desc
		}
		return "History changed"

	default:
		return "Unknown event"
	}
}

func songLabel(s *core.Song) string {
	if s.Artist == "" {
		return s.DisplayTitle()
	}
	return s.Artist + " - " + s.DisplayTitle()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", m, s)
}

// eventEmoji returns an emoji for the event type.
func eventEmoji(t EventType) string {
	switch t {
	case EventSongChange:
		return "🎵"
	case EventSongComplete:
		return "✅"
	case EventSongSkip:
		return "⏭️"
	case EventPause:
		return "⏸️"
	case EventResume:
		return "▶️"
	case EventError:
		return "⚠️"
	case EventHistoryChange:
		return "🕘"
	default:
		return "❓"
	}
}

// eventTypeName returns the name of the event type.
func eventTypeName(t EventType) string {
	switch t {
	case EventSongChange:
		return "song_change"
	case EventSongComplete:
		return "song_complete"
	case EventSongSkip:
		return "song_skip"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventError:
		return "error"
	case EventHistoryChange:
		return "history_change"
	default:
		return "unknown"
	}
}

// String returns the event type name.
func (t EventType) String() string {
	return eventTypeName(t)
}
