package core

import "time"

// Status is the playback state machine state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusPlaying
	StatusPaused
	StatusFinished
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusFinished:
		return "finished"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a snapshot of the playback session.
type Session struct {
	Song       *Song         `json:"song"`
	Status     Status        `json:"status"`
	Position   time.Duration `json:"position"`
	Duration   time.Duration `json:"duration"`
	LastError  error         `json:"-"`
	Generation uint64        `json:"generation"`
}

// HasSong returns true if there is a current song.
func (s *Session) HasSong() bool {
	return s != nil && s.Song != nil
}

// IsPlaying returns true while audio is playing.
func (s *Session) IsPlaying() bool {
	return s != nil && s.Status == StatusPlaying
}

// ProgressPercent returns playback progress as a percentage (0-100).
func (s *Session) ProgressPercent() float64 {
	if s == nil || s.Duration <= 0 {
		return 0
	}
	return float64(s.Position) / float64(s.Duration) * 100
}
