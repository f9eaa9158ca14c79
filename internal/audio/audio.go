// Package audio defines the audio output capability the playback controller
// drives, and ships an HTTP-probing implementation of it.
package audio

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Status is an asynchronous update reported by a Resource.
type Status struct {
	Position  time.Duration
	Duration  time.Duration
	IsPlaying bool
	DidFinish bool
}

// Resource is a live handle to audio output for one song.
type Resource interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	// Release frees the handle. Calling it more than once is safe.
	Release(ctx context.Context) error
	// Subscribe registers fn for status updates. fn must not block.
	Subscribe(fn func(Status))
}

// Acquirer creates resources for audio locators.
type Acquirer interface {
	Acquire(ctx context.Context, locator string) (Resource, error)
}

// AcquirerFunc adapts a function to the Acquirer interface.
type AcquirerFunc func(ctx context.Context, locator string) (Resource, error)

// Acquire calls f.
func (f AcquirerFunc) Acquire(ctx context.Context, locator string) (Resource, error) {
	return f(ctx, locator)
}

// PlayPath is the route audio files are served from.
const PlayPath = "/api/audio/play/"

// Locator builds the audio URL for filename under baseURL.
func Locator(baseURL, filename string) string {
	return strings.TrimRight(baseURL, "/") + PlayPath + url.PathEscape(filename)
}
