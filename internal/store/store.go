// Package store persists bookmarks and credentials to a single JSON file.
// Every write first copies the current file to a .backup sibling, so one
// bad write never loses the previous state.
package store

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/webpilot/webpilot-go/internal/types"
)

var domainPattern = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)

// Bookmark is one saved page.
type Bookmark struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Domain      string     `json:"domain"`
	VisitCount  int        `json:"visit_count"`
	LastVisited *time.Time `json:"last_visited,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Credential is one saved login, keyed by canonical domain.
type Credential struct {
	Domain    string    `json:"domain"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// document is the on-disk layout of the data file.
type document struct {
	Bookmarks   []Bookmark            `json:"bookmarks"`
	Credentials map[string]Credential `json:"credentials"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Store owns the data file. All methods are safe for concurrent use.
type Store struct {
	path string

	mu  sync.Mutex
	doc document
}

// Open loads the data file at path, creating it (and its directory) when
// missing.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		now := time.Now().UTC()
		s.doc = document{
			Bookmarks:   []Bookmark{},
			Credentials: map[string]Credential{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.save(); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("Created new data file")
	case err != nil:
		return nil, fmt.Errorf("failed to read data file: %w", err)
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("failed to parse data file %s: %w", path, err)
		}
		if s.doc.Credentials == nil {
			s.doc.Credentials = map[string]Credential{}
		}
		log.Info().
			Str("path", path).
			Int("bookmarks", len(s.doc.Bookmarks)).
			Int("credentials", len(s.doc.Credentials)).
			Msg("Loaded data file")
	}

	return s, nil
}

// save writes the document, backing up the existing file first.
// Callers must hold s.mu (Open is the exception; the store is not yet
// shared there).
func (s *Store) save() error {
	if current, err := os.ReadFile(s.path); err == nil {
		backupPath := s.path + ".backup"
		if err := os.WriteFile(backupPath, current, 0o600); err != nil {
			log.Warn().Err(err).Str("path", backupPath).Msg("Failed to write backup file")
		}
	}

	s.doc.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	return nil
}

// CanonicalDomain reduces a URL or bare domain to its canonical host:
// lowercase, no scheme, no www prefix, no path. The host must look like a
// registrable domain under a known public suffix.
func CanonicalDomain(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", types.ErrInvalidDomain
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: %q", types.ErrInvalidDomain, raw)
		}
		s = u.Hostname()
	} else {
		// Bare input may still carry a path or port.
		if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
			s = s[:idx]
		}
		if idx := strings.LastIndex(s, ":"); idx >= 0 {
			s = s[:idx]
		}
	}

	s = strings.TrimPrefix(s, "www.")

	if !domainPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidDomain, raw)
	}

	// Reject hosts whose suffix is not a real registrable TLD, e.g.
	// "foo.localdomain". A single-label non-ICANN suffix means only the
	// wildcard default rule matched.
	if suffix, icann := publicsuffix.PublicSuffix(s); !icann && !strings.Contains(suffix, ".") {
		return "", fmt.Errorf("%w: %q has no recognized public suffix", types.ErrInvalidDomain, raw)
	}

	return s, nil
}
