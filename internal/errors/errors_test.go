package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestGetSuggestion(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"missing locator", fmt.Errorf("play: %w", ErrMissingLocator), "Pass the song's filename"},
		{"acquire", ErrAcquireFailed, "audio.base_url"},
		{"remote disabled", ErrRemoteDisabled, "remote.base_url"},
		{"remote down", errors.New("dial tcp: connection refused"), "saved locally"},
		{"corrupt", ErrStoreCorrupt, "history clear"},
		{"config", ErrInvalidConfig, "config init"},
		{"explicit", WithSuggestion(errors.New("boom"), "do the thing"), "do the thing"},
		{"unknown", errors.New("something else"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetSuggestion(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("GetSuggestion() = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("GetSuggestion() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestEncoreErrorUnwrap(t *testing.T) {
	err := WithSuggestion(ErrAcquireFailed, "retry")
	if !errors.Is(err, ErrAcquireFailed) {
		t.Error("errors.Is should see the wrapped error")
	}
	if err.Error() != ErrAcquireFailed.Error() {
		t.Errorf("Error() = %q, want %q", err.Error(), ErrAcquireFailed.Error())
	}
}

func TestFormat(t *testing.T) {
	if Format(nil) != "" {
		t.Error("Format(nil) should be empty")
	}
	got := Format(ErrMissingLocator)
	if !strings.HasPrefix(got, "Error: ") || !strings.Contains(got, "Suggestion: ") {
		t.Errorf("Format() = %q", got)
	}
	if got := Format(errors.New("plain")); got != "Error: plain" {
		t.Errorf("Format() = %q, want %q", got, "Error: plain")
	}
}

func TestPartialResult(t *testing.T) {
	var p PartialResult[[]string]
	if p.HasErrors() || p.ErrorSummary() != "" {
		t.Error("empty result should have no errors")
	}

	p.AddError(nil)
	p.AddError(errors.New("first"))
	if p.ErrorSummary() != "first" {
		t.Errorf("ErrorSummary() = %q, want first", p.ErrorSummary())
	}

	p.AddError(errors.New("second"))
	if !strings.HasPrefix(p.ErrorSummary(), "2 errors occurred") {
		t.Errorf("ErrorSummary() = %q", p.ErrorSummary())
	}
}
