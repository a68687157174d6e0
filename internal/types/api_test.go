package types

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateClientID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid", "client-1", false},
		{"uuid style", "550e8400-e29b-41d4-a716-446655440000", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("a", MaxClientIDLength+1), true},
		{"at limit", strings.Repeat("a", MaxClientIDLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClientID(tt.id)
			if tt.wantErr && !errors.Is(err, ErrClientIDInvalid) {
				t.Errorf("ValidateClientID(%q) = %v, want ErrClientIDInvalid", tt.id, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateClientID(%q) = %v, want nil", tt.id, err)
			}
		})
	}
}

func TestNavigateRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     NavigateRequest
		wantErr error
	}{
		{"valid", NavigateRequest{ClientID: "c", URL: "https://example.com"}, nil},
		{"valid http", NavigateRequest{ClientID: "c", URL: "http://example.com/a?b=c"}, nil},
		{"missing client", NavigateRequest{URL: "https://example.com"}, ErrClientIDInvalid},
		{"missing url", NavigateRequest{ClientID: "c"}, ErrURLRequired},
		{"bad scheme", NavigateRequest{ClientID: "c", URL: "file:///etc/passwd"}, ErrInvalidURL},
		{"javascript scheme", NavigateRequest{ClientID: "c", URL: "javascript:alert(1)"}, ErrInvalidURL},
		{"no host", NavigateRequest{ClientID: "c", URL: "https://"}, ErrInvalidURL},
		{"oversized", NavigateRequest{ClientID: "c", URL: "https://example.com/" + strings.Repeat("a", MaxURLLength)}, ErrInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ExtractRequest
		wantErr bool
	}{
		{"valid minimal", ExtractRequest{ClientID: "c", Selector: "#main"}, false},
		{"valid full", ExtractRequest{
			ClientID:          "c",
			Selector:          ".price",
			ContentType:       "attribute",
			Attribute:         "data-value",
			RetryAttempts:     3,
			MinLength:         10,
			FallbackSelectors: []string{".amount"},
		}, false},
		{"empty selector", ExtractRequest{ClientID: "c", Selector: "  "}, true},
		{"unknown content type", ExtractRequest{ClientID: "c", Selector: "p", ContentType: "markdown"}, true},
		{"attribute without name", ExtractRequest{ClientID: "c", Selector: "p", ContentType: "attribute"}, false},
		{"computed styles", ExtractRequest{ClientID: "c", Selector: "p", ContentType: "computed"}, false},
		{"negative retries", ExtractRequest{ClientID: "c", Selector: "p", RetryAttempts: -1}, true},
		{"negative min length", ExtractRequest{ClientID: "c", Selector: "p", MinLength: -5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClickRequest_Validate(t *testing.T) {
	if err := (&ClickRequest{ClientID: "c", Selector: "button"}).Validate(); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	if err := (&ClickRequest{ClientID: "c"}).Validate(); !errors.Is(err, ErrSelectorEmpty) {
		t.Errorf("Validate(no selector) = %v, want ErrSelectorEmpty", err)
	}
}

func TestInputRequest_Validate(t *testing.T) {
	if err := (&InputRequest{ClientID: "c", Selector: "input", Text: "hi"}).Validate(); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	huge := InputRequest{ClientID: "c", Selector: "input", Text: strings.Repeat("x", MaxTextLength+1)}
	if err := huge.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Validate(oversized text) = %v, want ErrInvalidRequest", err)
	}
}

func TestScreenshotRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ScreenshotRequest
		wantErr bool
	}{
		{"defaults", ScreenshotRequest{ClientID: "c"}, false},
		{"jpeg with quality", ScreenshotRequest{ClientID: "c", Format: "jpeg", Quality: 80}, false},
		{"bad format", ScreenshotRequest{ClientID: "c", Format: "webp"}, true},
		{"quality out of range", ScreenshotRequest{ClientID: "c", Quality: 150}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBookmarkRequest_Validate(t *testing.T) {
	if err := (&BookmarkRequest{URL: "https://example.com", Title: "t"}).Validate(); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	if err := (&BookmarkRequest{Title: "t"}).Validate(); !errors.Is(err, ErrURLRequired) {
		t.Errorf("Validate(no url) = %v, want ErrURLRequired", err)
	}
	if err := (&BookmarkRequest{URL: "https://example.com", Title: " "}).Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Validate(no title) = %v, want ErrInvalidRequest", err)
	}
}

func TestCredentialRequest_Validate(t *testing.T) {
	valid := CredentialRequest{Domain: "example.com", Username: "u", Password: "p"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	for _, broken := range []CredentialRequest{
		{Username: "u", Password: "p"},
		{Domain: "example.com", Password: "p"},
		{Domain: "example.com", Username: "u"},
	} {
		if err := broken.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidRequest", broken, err)
		}
	}
}
