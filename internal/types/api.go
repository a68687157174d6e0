package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Request validation limits.
const (
	MaxClientIDLength = 128
	MaxURLLength      = 8192
	MaxSelectorLength = 1000
	MaxTextLength     = 64 * 1024 // typed input payload
	MaxTimeoutMS      = 60000
	MaxRetryAttempts  = 10
)

// NavigateRequest asks the service to point a client's page at a URL.
type NavigateRequest struct {
	ClientID        string `json:"client_id"`
	URL             string `json:"url"`
	WaitForLoad     bool   `json:"wait_for_load"`
	WaitForSelector string `json:"wait_for_selector,omitempty"`
	TimeoutMS       int    `json:"timeout,omitempty"`
}

// Validate validates the request and returns an error if invalid.
func (r *NavigateRequest) Validate() error {
	if err := ValidateClientID(r.ClientID); err != nil {
		return err
	}
	if r.URL == "" {
		return ErrURLRequired
	}
	if len(r.URL) > MaxURLLength {
		return fmt.Errorf("%w: exceeds maximum length of %d", ErrInvalidURL, MaxURLLength)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// ExtractRequest asks the service to extract content from a client's page.
type ExtractRequest struct {
	ClientID          string   `json:"client_id"`
	Selector          string   `json:"selector"`
	ContentType       string   `json:"content_type,omitempty"` // defaults to "text"
	Attribute         string   `json:"attribute,omitempty"`    // optional; empty extracts all attributes
	TimeoutMS         int      `json:"timeout,omitempty"`
	WaitForContent    bool     `json:"wait_for_content,omitempty"`
	RetryAttempts     int      `json:"retry_attempts,omitempty"`
	MinLength         int      `json:"min_length,omitempty"`
	FallbackSelectors []string `json:"fallback_selectors,omitempty"`
}

// Validate validates the request and returns an error if invalid.
func (r *ExtractRequest) Validate() error {
	if err := ValidateClientID(r.ClientID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Selector) == "" {
		return ErrSelectorEmpty
	}
	switch r.ContentType {
	case "", "text", "html", "outer_html", "value", "attribute", "computed":
	default:
		return fmt.Errorf("%w: unknown content_type %q", ErrInvalidRequest, r.ContentType)
	}
	if r.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry_attempts must not be negative", ErrInvalidRequest)
	}
	if r.MinLength < 0 {
		return fmt.Errorf("%w: min_length must not be negative", ErrInvalidRequest)
	}
	return nil
}

// ClickRequest asks the service to click an element on a client's page.
type ClickRequest struct {
	ClientID          string `json:"client_id"`
	Selector          string `json:"selector"`
	WaitForNavigation bool   `json:"wait_for_navigation,omitempty"`
	TimeoutMS         int    `json:"timeout,omitempty"`
}

// Validate validates the request and returns an error if invalid.
func (r *ClickRequest) Validate() error {
	if err := ValidateClientID(r.ClientID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Selector) == "" {
		return ErrSelectorEmpty
	}
	return nil
}

// InputRequest asks the service to type text into an element.
type InputRequest struct {
	ClientID string `json:"client_id"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Clear    bool   `json:"clear,omitempty"`
}

// Validate validates the request and returns an error if invalid.
func (r *InputRequest) Validate() error {
	if err := ValidateClientID(r.ClientID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Selector) == "" {
		return ErrSelectorEmpty
	}
	if len(r.Text) > MaxTextLength {
		return fmt.Errorf("%w: text exceeds maximum length of %d", ErrInvalidRequest, MaxTextLength)
	}
	return nil
}

// ScreenshotRequest asks the service to capture a client's page or element.
type ScreenshotRequest struct {
	ClientID string `json:"client_id"`
	FullPage bool   `json:"full_page,omitempty"`
	Element  string `json:"element,omitempty"` // optional selector; empty means viewport
	Format   string `json:"format,omitempty"`  // "png" (default) or "jpeg"
	Quality  int    `json:"quality,omitempty"` // jpeg only, 0-100
}

// Validate validates the request and returns an error if invalid.
func (r *ScreenshotRequest) Validate() error {
	if err := ValidateClientID(r.ClientID); err != nil {
		return err
	}
	switch r.Format {
	case "", "png", "jpeg":
	default:
		return fmt.Errorf("%w: format must be png or jpeg", ErrInvalidRequest)
	}
	if r.Quality < 0 || r.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 0 and 100", ErrInvalidRequest)
	}
	return nil
}

// BookmarkRequest creates or updates a stored bookmark.
type BookmarkRequest struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate validates the request and returns an error if invalid.
func (r *BookmarkRequest) Validate() error {
	if r.URL == "" {
		return ErrURLRequired
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	return nil
}

// CredentialRequest stores login credentials for a domain.
type CredentialRequest struct {
	Domain   string `json:"domain"`
	Username string `json:"username"`
	Password string `json:"password"`
	Notes    string `json:"notes,omitempty"`
}

// Validate validates the request and returns an error if invalid.
func (r *CredentialRequest) Validate() error {
	if strings.TrimSpace(r.Domain) == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidRequest)
	}
	if r.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidRequest)
	}
	return nil
}

// ValidateClientID enforces the shared client identifier rules.
func ValidateClientID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrClientIDInvalid
	}
	if len(id) > MaxClientIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrClientIDInvalid, MaxClientIDLength)
	}
	return nil
}

// Response is the uniform JSON envelope for all API endpoints.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// SessionStatus describes one pooled session as reported by the status API.
type SessionStatus struct {
	ClientID     string    `json:"client_id"`
	CurrentURL   string    `json:"current_url"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Healthy      bool      `json:"healthy"`
}

// PoolStatus summarizes the whole pool for the status API and dashboard.
type PoolStatus struct {
	BackendAlive bool            `json:"backend_alive"`
	Capacity     int             `json:"capacity"` // 0 means unlimited
	Sessions     []SessionStatus `json:"sessions"`
}
