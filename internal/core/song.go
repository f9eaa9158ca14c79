package core

import (
	"strings"

	encerr "github.com/tessro/encore/internal/errors"
)

// Source indicates how a play event was triggered.
type Source string

const (
	SourceManual        Source = "manual"
	SourceFaceDetection Source = "face-detection"
	SourceTest          Source = "test"
)

// Default display metadata for songs missing it.
const (
	DefaultTitle    = "Unknown Song"
	DefaultArtist   = "Unknown Artist"
	DefaultLanguage = "Unknown"
)

// ParseSource maps a string to a Source. Unknown values map to SourceManual.
func ParseSource(s string) Source {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceFaceDetection:
		return SourceFaceDetection
	case SourceTest:
		return SourceTest
	default:
		return SourceManual
	}
}

// Song represents a playable song. Filename is its stable identity.
type Song struct {
	Filename string  `json:"filename"`
	Title    string  `json:"title,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Language string  `json:"language,omitempty"`
	Emotion  *string `json:"emotion"`
	Source   Source  `json:"source,omitempty"`
}

// WithDefaults returns a copy of the song with absent metadata replaced by defaults.
func (s Song) WithDefaults() Song {
	if strings.TrimSpace(s.Title) == "" {
		s.Title = DefaultTitle
	}
	if strings.TrimSpace(s.Artist) == "" {
		s.Artist = DefaultArtist
	}
	if strings.TrimSpace(s.Language) == "" {
		s.Language = DefaultLanguage
	}
	s.Source = ParseSource(string(s.Source))
	if s.Emotion != nil && strings.TrimSpace(*s.Emotion) == "" {
		s.Emotion = nil
	}
	return s
}

// Validate reports whether the song can be resolved to an audio locator.
func (s Song) Validate() error {
	if strings.TrimSpace(s.Filename) == "" {
		return encerr.ErrMissingLocator
	}
	return nil
}

// Same returns true if both songs refer to the same file.
func (s *Song) Same(other *Song) bool {
	if s == nil || other == nil {
		return false
	}
	return s.Filename == other.Filename
}

// DisplayTitle returns the title, or the filename when no title is set.
func (s Song) DisplayTitle() string {
	if strings.TrimSpace(s.Title) != "" {
		return s.Title
	}
	return s.Filename
}

// EmotionString returns the emotion or an empty string.
func (s Song) EmotionString() string {
	if s.Emotion == nil {
		return ""
	}
	return *s.Emotion
}

// StringPtr returns a pointer to s, or nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
