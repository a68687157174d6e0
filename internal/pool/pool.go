// Package pool maintains the bounded set of per-client page sessions over
// the shared browser backend. Sessions are created lazily on first
// acquire, probed for liveness on reuse, and replaced in place when their
// page has died.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/webpilot/webpilot-go/internal/backend"
	"github.com/webpilot/webpilot-go/internal/config"
	"github.com/webpilot/webpilot-go/internal/metrics"
	"github.com/webpilot/webpilot-go/internal/types"
)

// probeScript is evaluated on an existing page to verify it still responds.
const probeScript = `() => document.readyState`

// closeConcurrency bounds parallel page teardown during bulk invalidation.
const closeConcurrency = 4

// Session binds one client identifier to one browser page.
type Session struct {
	ID        string
	CreatedAt time.Time

	page         backend.Page
	lastActivity atomic.Int64 // unix nanos

	urlMu      sync.RWMutex
	currentURL string
}

// Page returns the underlying page.
func (s *Session) Page() backend.Page {
	return s.page
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent operation.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// SetCurrentURL records the page's last known location.
func (s *Session) SetCurrentURL(url string) {
	s.urlMu.Lock()
	s.currentURL = url
	s.urlMu.Unlock()
}

// CurrentURL returns the page's last known location.
func (s *Session) CurrentURL() string {
	s.urlMu.RLock()
	defer s.urlMu.RUnlock()
	return s.currentURL
}

// Pool tracks sessions by client identifier.
type Pool struct {
	cfg     *config.Config
	backend backend.Backend

	mu       sync.RWMutex
	sessions map[string]*Session
	reserved map[string]struct{} // slots held while a page is being created
	closed   bool

	create singleflight.Group
}

// New creates a pool over the given backend and registers it for
// disconnect invalidation: when the browser process is lost, every
// session is dropped so the next acquire starts fresh.
func New(cfg *config.Config, b backend.Backend) *Pool {
	p := &Pool{
		cfg:      cfg,
		backend:  b,
		sessions: make(map[string]*Session),
		reserved: make(map[string]struct{}),
	}
	b.OnDisconnect(p.InvalidateAll)
	return p
}

// Acquire returns the session for clientID, creating it if absent.
// An existing session is probed first; if its page no longer responds it
// is replaced with a fresh one under the same identifier. Replacement
// does not count against capacity, but a brand-new identifier is refused
// with ErrCapacityExceeded once the pool is full.
func (p *Pool) Acquire(ctx context.Context, clientID string) (*Session, error) {
	if err := types.ValidateClientID(clientID); err != nil {
		return nil, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, types.ErrPoolClosed
	}
	existing := p.sessions[clientID]
	p.mu.RUnlock()

	if existing != nil {
		if p.probe(ctx, existing) {
			existing.Touch()
			return existing, nil
		}
		log.Warn().Str("client_id", clientID).Msg("Session page unresponsive, recreating")
		metrics.SessionsRecreated.Inc()
		p.evict(clientID, existing)
	}

	return p.createSession(ctx, clientID)
}

// createSession builds a new session, collapsing concurrent acquires for
// the same identifier into a single page creation.
func (p *Pool) createSession(ctx context.Context, clientID string) (*Session, error) {
	v, err, _ := p.create.Do(clientID, func() (interface{}, error) {
		// Reserve a slot before creating the page so concurrent acquires
		// for distinct new identifiers cannot all pass the capacity check
		// while no page has been inserted yet.
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, types.ErrPoolClosed
		}
		// A concurrent acquire may have created it already.
		if s := p.sessions[clientID]; s != nil {
			p.mu.Unlock()
			return s, nil
		}
		if !p.cfg.AllowUnlimitedSessions && len(p.sessions)+len(p.reserved) >= p.cfg.MaxSessions {
			count := len(p.sessions) + len(p.reserved)
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %d/%d sessions in use", types.ErrCapacityExceeded, count, p.cfg.MaxSessions)
		}
		p.reserved[clientID] = struct{}{}
		p.mu.Unlock()

		page, err := p.backend.NewPage(ctx)
		if err != nil {
			p.mu.Lock()
			delete(p.reserved, clientID)
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", types.ErrSessionCreationFailed, err)
		}

		s := &Session{
			ID:        clientID,
			CreatedAt: time.Now(),
			page:      page,
		}
		s.Touch()

		p.mu.Lock()
		delete(p.reserved, clientID)
		if p.closed {
			p.mu.Unlock()
			_ = page.Close()
			return nil, types.ErrPoolClosed
		}
		p.sessions[clientID] = s
		total := len(p.sessions)
		p.mu.Unlock()

		metrics.UpdateSessionMetrics(total)
		log.Info().
			Str("client_id", clientID).
			Int("active_sessions", total).
			Msg("Session created")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// probe checks that the session's page still evaluates JavaScript.
func (p *Pool) probe(ctx context.Context, s *Session) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.page.Eval(probeCtx, probeScript)
	return err == nil
}

// evict removes the session from the map if it is still the registered
// one, then closes its page outside the lock.
func (p *Pool) evict(clientID string, s *Session) {
	p.mu.Lock()
	if p.sessions[clientID] == s {
		delete(p.sessions, clientID)
	}
	p.mu.Unlock()
	if err := s.page.Close(); err != nil {
		log.Debug().Err(err).Str("client_id", clientID).Msg("Closing dead page failed")
	}
}

// Release closes and removes the session for clientID. It reports whether
// a session existed.
func (p *Pool) Release(clientID string) bool {
	p.mu.Lock()
	s, ok := p.sessions[clientID]
	if ok {
		delete(p.sessions, clientID)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.page.Close(); err != nil {
		log.Debug().Err(err).Str("client_id", clientID).Msg("Page close failed during release")
	}
	metrics.UpdateSessionMetrics(p.Count())
	log.Info().Str("client_id", clientID).Msg("Session released")
	return true
}

// Status reports one session, or nil when no session exists for clientID.
func (p *Pool) Status(ctx context.Context, clientID string) *types.SessionStatus {
	p.mu.RLock()
	s := p.sessions[clientID]
	p.mu.RUnlock()
	if s == nil {
		return nil
	}
	st := p.sessionStatus(ctx, s)
	return &st
}

// AllStatuses reports the whole pool.
func (p *Pool) AllStatuses(ctx context.Context) types.PoolStatus {
	p.mu.RLock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.RUnlock()

	capacity := p.cfg.MaxSessions
	if p.cfg.AllowUnlimitedSessions {
		capacity = 0
	}
	status := types.PoolStatus{
		BackendAlive: p.backend.Alive(),
		Capacity:     capacity,
		Sessions:     make([]types.SessionStatus, 0, len(sessions)),
	}
	for _, s := range sessions {
		status.Sessions = append(status.Sessions, p.sessionStatus(ctx, s))
	}
	return status
}

func (p *Pool) sessionStatus(ctx context.Context, s *Session) types.SessionStatus {
	return types.SessionStatus{
		ClientID:     s.ID,
		CurrentURL:   s.CurrentURL(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
		Healthy:      p.probe(ctx, s),
	}
}

// Count returns the number of active sessions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// InvalidateAll drops every session without touching the backend. Pages
// are closed best-effort; after a backend disconnect they are already
// gone and the close calls simply fail.
func (p *Pool) InvalidateAll() {
	p.mu.Lock()
	dropped := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	metrics.UpdateSessionMetrics(0)
	if len(dropped) == 0 {
		return
	}
	log.Warn().Int("count", len(dropped)).Msg("Invalidating all sessions")

	var g errgroup.Group
	g.SetLimit(closeConcurrency)
	for id, s := range dropped {
		id, s := id, s
		g.Go(func() error {
			if err := s.page.Close(); err != nil {
				log.Debug().Err(err).Str("client_id", id).Msg("Page close failed during invalidation")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Shutdown marks the pool closed and tears down all sessions in parallel.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dropped := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(closeConcurrency)
	for id, s := range dropped {
		id, s := id, s
		g.Go(func() error {
			if err := s.page.Close(); err != nil {
				log.Debug().Err(err).Str("client_id", id).Msg("Page close failed during shutdown")
			}
			return nil
		})
	}
	err := g.Wait()
	log.Info().Int("count", len(dropped)).Msg("Session pool shut down")
	return err
}
