// Package types provides shared types, interfaces, and errors for the application.
package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Backend errors
	ErrBackendInitFailed   = errors.New("browser backend initialization failed")
	ErrBackendDisconnected = errors.New("browser backend disconnected")
	ErrBackendClosed       = errors.New("browser backend is closed")

	// Session pool errors
	ErrCapacityExceeded      = errors.New("maximum number of concurrent sessions reached")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionCreationFailed = errors.New("session creation failed")
	ErrSessionUnhealthy      = errors.New("session page is unresponsive")
	ErrPoolClosed            = errors.New("session pool is closed")

	// Selector errors
	ErrInvalidSelector = errors.New("invalid selector")
	ErrSelectorTooLong = errors.New("selector exceeds maximum length")
	ErrSelectorEmpty   = errors.New("selector must be a non-empty string")
	ErrElementNotFound = errors.New("element not found")

	// Extraction errors
	ErrExtractionFailed     = errors.New("content extraction failed")
	ErrContentTooShort      = errors.New("extracted content below minimum length")
	ErrContentNotMeaningful = errors.New("extracted content is not meaningful")

	// Action errors
	ErrNavigationFailed = errors.New("navigation failed")
	ErrClickFailed      = errors.New("click failed")
	ErrInputFailed      = errors.New("text input failed")
	ErrScreenshotFailed = errors.New("screenshot capture failed")

	// Request errors
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidURL      = errors.New("invalid URL")
	ErrURLRequired     = errors.New("url is required")
	ErrClientIDInvalid = errors.New("client id must be a non-empty string")

	// Store errors
	ErrInvalidDomain     = errors.New("invalid domain")
	ErrBookmarkNotFound  = errors.New("bookmark not found")
	ErrCredentialMissing = errors.New("no credentials stored for domain")
)

// ExtractionError carries the structured diagnostics attached to a failed
// extraction: which selector was attempted, what content type was requested,
// and actionable suggestions derived from the failure mode.
type ExtractionError struct {
	Selector    string    // The (normalized) selector that was attempted last
	ContentType string    // Requested content type ("text", "html", ...)
	Timestamp   time.Time // When the extraction gave up
	Attempts    int       // Total attempts across all selectors in the plan
	Suggestions []string  // Actionable hints derived from the failure mode
	Message     string    // Human-readable error message
	Err         error     // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates a structured extraction failure with suggestions
// derived from the underlying cause.
func NewExtractionError(selector, contentType string, attempts int, err error) *ExtractionError {
	return &ExtractionError{
		Selector:    selector,
		ContentType: contentType,
		Timestamp:   time.Now().UTC(),
		Attempts:    attempts,
		Suggestions: SuggestionsFor(err, selector),
		Message:     fmt.Sprintf("failed to extract %s content with selector %q: %v", contentType, selector, err),
		Err:         err,
	}
}

// SuggestionsFor maps a failure cause to remediation hints. The hints are
// surfaced verbatim in API error payloads, so they are phrased for end users.
func SuggestionsFor(err error, selector string) []string {
	switch {
	case errors.Is(err, ErrElementNotFound):
		return []string{
			"Verify the selector matches an element on the current page",
			"Wait for the page to finish loading before extracting",
			"Try a broader fallback such as 'main' or 'body'",
		}
	case errors.Is(err, ErrInvalidSelector), errors.Is(err, ErrSelectorEmpty), errors.Is(err, ErrSelectorTooLong):
		return []string{
			"Check the CSS selector syntax",
			"Remove any script fragments or event-handler attributes from the selector",
		}
	case errors.Is(err, ErrContentTooShort), errors.Is(err, ErrContentNotMeaningful):
		return []string{
			"Lower min_length or target a more specific element",
			"The element may be an empty container; try its children instead",
			fmt.Sprintf("Selector %q matched, but its content did not pass validity checks", selector),
		}
	case errors.Is(err, ErrBackendDisconnected), errors.Is(err, ErrSessionUnhealthy):
		return []string{
			"The browser session was lost; retry the request to obtain a fresh session",
		}
	default:
		return []string{
			"Increase the timeout if the page loads slowly",
			"Enable wait_for_content to let dynamic content settle",
		}
	}
}

// OperationError wraps a failed single-pass page action (navigate, click,
// input, screenshot) with the client and target it applied to.
type OperationError struct {
	Op       string // "navigate", "click", "input", "screenshot"
	ClientID string
	Target   string // URL or selector, depending on the operation
	Err      error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed for client %q (target %q): %v", e.Op, e.ClientID, e.Target, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError creates an OperationError for the given action.
func NewOperationError(op, clientID, target string, err error) *OperationError {
	return &OperationError{Op: op, ClientID: clientID, Target: target, Err: err}
}
