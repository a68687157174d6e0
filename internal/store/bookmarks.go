package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/webpilot/webpilot-go/internal/types"
)

// AddBookmark saves a new bookmark. The domain is derived from the URL.
func (s *Store) AddBookmark(req *types.BookmarkRequest) (*Bookmark, error) {
	domain, err := CanonicalDomain(req.URL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b := Bookmark{
		ID:          uuid.NewString(),
		URL:         req.URL,
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Tags:        normalizeTags(req.Tags),
		Domain:      domain,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Bookmarks = append(s.doc.Bookmarks, b)
	if err := s.save(); err != nil {
		s.doc.Bookmarks = s.doc.Bookmarks[:len(s.doc.Bookmarks)-1]
		return nil, err
	}

	log.Info().Str("id", b.ID).Str("domain", domain).Msg("Bookmark added")
	return &b, nil
}

// ListBookmarks returns bookmarks, optionally filtered by tag and domain.
func (s *Store) ListBookmarks(tag, domain string) []Bookmark {
	tag = strings.ToLower(strings.TrimSpace(tag))
	domain = strings.ToLower(strings.TrimSpace(domain))

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Bookmark, 0, len(s.doc.Bookmarks))
	for _, b := range s.doc.Bookmarks {
		if domain != "" && b.Domain != domain {
			continue
		}
		if tag != "" && !hasTag(b.Tags, tag) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// SearchBookmarks matches query against title, URL, description, and tags,
// case-insensitively.
func (s *Store) SearchBookmarks(query string) []Bookmark {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Bookmark
	for _, b := range s.doc.Bookmarks {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.URL), q) ||
			strings.Contains(strings.ToLower(b.Description), q) ||
			hasTag(b.Tags, q) {
			out = append(out, b)
		}
	}
	return out
}

// UpdateBookmark overwrites the stored bookmark's mutable fields.
func (s *Store) UpdateBookmark(id string, req *types.BookmarkRequest) (*Bookmark, error) {
	domain, err := CanonicalDomain(req.URL)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Bookmarks {
		if s.doc.Bookmarks[i].ID != id {
			continue
		}
		b := &s.doc.Bookmarks[i]
		b.URL = req.URL
		b.Title = strings.TrimSpace(req.Title)
		b.Description = strings.TrimSpace(req.Description)
		b.Tags = normalizeTags(req.Tags)
		b.Domain = domain
		b.UpdatedAt = time.Now().UTC()
		if err := s.save(); err != nil {
			return nil, err
		}
		copied := *b
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrBookmarkNotFound, id)
}

// DeleteBookmark removes a bookmark by id.
func (s *Store) DeleteBookmark(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Bookmarks {
		if s.doc.Bookmarks[i].ID != id {
			continue
		}
		s.doc.Bookmarks = append(s.doc.Bookmarks[:i], s.doc.Bookmarks[i+1:]...)
		if err := s.save(); err != nil {
			return err
		}
		log.Info().Str("id", id).Msg("Bookmark deleted")
		return nil
	}
	return fmt.Errorf("%w: %s", types.ErrBookmarkNotFound, id)
}

// RecordVisit increments a bookmark's visit counter.
func (s *Store) RecordVisit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Bookmarks {
		if s.doc.Bookmarks[i].ID != id {
			continue
		}
		now := time.Now().UTC()
		s.doc.Bookmarks[i].VisitCount++
		s.doc.Bookmarks[i].LastVisited = &now
		return s.save()
	}
	return fmt.Errorf("%w: %s", types.ErrBookmarkNotFound, id)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
