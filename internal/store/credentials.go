package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webpilot/webpilot-go/internal/types"
)

// SaveCredential stores or replaces the login for a domain.
func (s *Store) SaveCredential(req *types.CredentialRequest) (*Credential, error) {
	domain, err := CanonicalDomain(req.Domain)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	c := Credential{
		Domain:    domain,
		Username:  req.Username,
		Password:  req.Password,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := s.doc.Credentials[domain]; ok {
		c.CreatedAt = existing.CreatedAt
	}

	previous, existed := s.doc.Credentials[domain]
	s.doc.Credentials[domain] = c
	if err := s.save(); err != nil {
		if existed {
			s.doc.Credentials[domain] = previous
		} else {
			delete(s.doc.Credentials, domain)
		}
		return nil, err
	}

	log.Info().Str("domain", domain).Msg("Credential saved")
	return &c, nil
}

// GetCredential returns the login stored for a domain.
func (s *Store) GetCredential(domain string) (*Credential, error) {
	canonical, err := CanonicalDomain(domain)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.doc.Credentials[canonical]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrCredentialMissing, canonical)
	}
	return &c, nil
}

// ListCredentialDomains returns the domains with stored logins, sorted.
// Passwords are never included in listings.
func (s *Store) ListCredentialDomains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	domains := make([]string, 0, len(s.doc.Credentials))
	for d := range s.doc.Credentials {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// DeleteCredential removes the login stored for a domain.
func (s *Store) DeleteCredential(domain string) error {
	canonical, err := CanonicalDomain(domain)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Credentials[canonical]; !ok {
		return fmt.Errorf("%w: %s", types.ErrCredentialMissing, canonical)
	}
	delete(s.doc.Credentials, canonical)
	if err := s.save(); err != nil {
		return err
	}
	log.Info().Str("domain", canonical).Msg("Credential deleted")
	return nil
}
