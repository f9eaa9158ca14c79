// Package errors holds encore's sentinel errors and the suggestions shown
// next to them on the command line.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for common failure scenarios.
var (
	ErrMissingLocator    = errors.New("song has no audio locator")
	ErrAcquireFailed     = errors.New("failed to acquire audio resource")
	ErrRemoteUnavailable = errors.New("remote history service unavailable")
	ErrRemoteDisabled    = errors.New("remote history service not configured")
	ErrUnsuccessful      = errors.New("remote history service reported failure")
	ErrStoreCorrupt      = errors.New("local history data is corrupt")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("request timeout")
	ErrConfigNotFound    = errors.New("config file not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// EncoreError wraps an error with a user-friendly suggestion.
type EncoreError struct {
	Err        error
	Suggestion string
}

func (e *EncoreError) Error() string {
	return e.Err.Error()
}

func (e *EncoreError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &EncoreError{
		Err:        err,
		Suggestion: suggestion,
	}
}

const (
	suggestFilename = "Pass the song's filename, e.g. 'encore play song.mp3'"
	suggestAudio    = "Check that audio.base_url points at a running audio server"
	suggestRemote   = "Set remote.base_url or ENCORE_REMOTE_BASE_URL to sync history"
	suggestOffline  = "History was saved locally and will be reconciled on the next load"
	suggestClear    = "Run 'encore history clear' to reset the local history"
	suggestConfig   = "Run 'encore config init' to create a configuration file"
)

// suggestions is checked in order; the first sentinel found in the chain wins.
var suggestions = []struct {
	sentinel   error
	suggestion string
}{
	{ErrMissingLocator, suggestFilename},
	{ErrAcquireFailed, suggestAudio},
	{ErrRemoteDisabled, suggestRemote},
	{ErrRemoteUnavailable, suggestOffline},
	{ErrTimeout, suggestOffline},
	{ErrStoreCorrupt, suggestClear},
	{ErrConfigNotFound, suggestConfig},
	{ErrInvalidConfig, suggestConfig},
}

// keywords catch errors from libraries that do not wrap a sentinel.
var keywords = []struct {
	substr     string
	suggestion string
}{
	{"acquire", suggestAudio},
	{"timeout", suggestOffline},
	{"connection refused", suggestOffline},
	{"config", suggestConfig},
}

// GetSuggestion returns a suggestion for the given error, or "".
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var encoreErr *EncoreError
	if errors.As(err, &encoreErr) && encoreErr.Suggestion != "" {
		return encoreErr.Suggestion
	}

	for _, s := range suggestions {
		if errors.Is(err, s.sentinel) {
			return s.suggestion
		}
	}

	msg := strings.ToLower(err.Error())
	for _, k := range keywords {
		if strings.Contains(msg, k.substr) {
			return k.suggestion
		}
	}
	return ""
}

// Format returns the message printed for a failed command.
func Format(err error) string {
	if err == nil {
		return ""
	}
	if suggestion := GetSuggestion(err); suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err, suggestion)
	}
	return fmt.Sprintf("Error: %s", err)
}

// PartialResult carries the outcome of a batch where some items failed.
type PartialResult[T any] struct {
	Data   T
	Errors []error
}

// HasErrors returns true if any item failed.
func (p *PartialResult[T]) HasErrors() bool {
	return len(p.Errors) > 0
}

// AddError records a failed item. Nil errors are ignored.
func (p *PartialResult[T]) AddError(err error) {
	if err != nil {
		p.Errors = append(p.Errors, err)
	}
}

// ErrorSummary lists the failures, one per line when there are several.
func (p *PartialResult[T]) ErrorSummary() string {
	switch len(p.Errors) {
	case 0:
		return ""
	case 1:
		return p.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:\n", len(p.Errors))
	for i, err := range p.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err)
	}
	return sb.String()
}
