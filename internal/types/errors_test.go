package types

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractionError(t *testing.T) {
	cause := ErrElementNotFound
	err := NewExtractionError("#main", "text", 6, cause)

	if !errors.Is(err, ErrElementNotFound) {
		t.Error("errors.Is should reach the underlying cause")
	}
	if err.Attempts != 6 {
		t.Errorf("Attempts = %d, want 6", err.Attempts)
	}
	if err.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if !strings.Contains(err.Error(), "#main") {
		t.Errorf("Error() = %q, should mention the selector", err.Error())
	}
	if len(err.Suggestions) == 0 {
		t.Fatal("Suggestions is empty")
	}

	var extErr *ExtractionError
	if !errors.As(error(err), &extErr) {
		t.Error("errors.As should match *ExtractionError")
	}
}

func TestSuggestionsFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"element not found", ErrElementNotFound, "fallback"},
		{"invalid selector", ErrInvalidSelector, "syntax"},
		{"content too short", ErrContentTooShort, "min_length"},
		{"backend lost", ErrBackendDisconnected, "fresh session"},
		{"unknown", errors.New("boom"), "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuggestionsFor(tt.err, "#x")
			if len(got) == 0 {
				t.Fatal("SuggestionsFor() returned nothing")
			}
			found := false
			for _, s := range got {
				if strings.Contains(strings.ToLower(s), tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("SuggestionsFor(%v) = %v, want a hint mentioning %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestOperationError(t *testing.T) {
	err := NewOperationError("click", "c1", "#btn", ErrClickFailed)

	if !errors.Is(err, ErrClickFailed) {
		t.Error("errors.Is should reach the underlying cause")
	}
	msg := err.Error()
	for _, want := range []string{"click", "c1", "#btn"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, should contain %q", msg, want)
		}
	}
}
