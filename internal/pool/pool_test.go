package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ysmood/gson"

	"github.com/webpilot/webpilot-go/internal/backend"
	"github.com/webpilot/webpilot-go/internal/config"
	"github.com/webpilot/webpilot-go/internal/types"
)

// fakePage satisfies backend.Page. Setting dead makes every call fail,
// simulating a page whose target has gone away.
type fakePage struct {
	mu     sync.Mutex
	dead   bool
	closed bool
}

func (p *fakePage) fail() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead || p.closed {
		return errors.New("page gone")
	}
	return nil
}

func (p *fakePage) kill() {
	p.mu.Lock()
	p.dead = true
	p.mu.Unlock()
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Navigate(ctx context.Context, url string) error { return p.fail() }
func (p *fakePage) WaitLoad(ctx context.Context) error             { return p.fail() }
func (p *fakePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return p.fail()
}
func (p *fakePage) Has(ctx context.Context, selector string) (bool, error) {
	return false, p.fail()
}
func (p *fakePage) Eval(ctx context.Context, js string) (gson.JSON, error) {
	if err := p.fail(); err != nil {
		return gson.New(nil), err
	}
	return gson.New("complete"), nil
}
func (p *fakePage) EvalOn(ctx context.Context, selector, js string) (gson.JSON, error) {
	return p.Eval(ctx, js)
}
func (p *fakePage) Click(ctx context.Context, selector string) error { return p.fail() }
func (p *fakePage) Type(ctx context.Context, selector, text string, clear bool) error {
	return p.fail()
}
func (p *fakePage) Screenshot(ctx context.Context, opts backend.ScreenshotOptions) ([]byte, error) {
	return nil, p.fail()
}
func (p *fakePage) Info(ctx context.Context) (backend.PageInfo, error) {
	return backend.PageInfo{}, p.fail()
}
func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// fakeBackend satisfies backend.Backend and records the pages it hands out.
type fakeBackend struct {
	mu        sync.Mutex
	pages     []*fakePage
	alive     bool
	failNext  bool
	pageDelay time.Duration
	observers []func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{alive: true}
}

func (b *fakeBackend) NewPage(ctx context.Context) (backend.Page, error) {
	if b.pageDelay > 0 {
		time.Sleep(b.pageDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return nil, errors.New("browser launch failed")
	}
	p := &fakePage{}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBackend) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive
}

func (b *fakeBackend) OnDisconnect(fn func()) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

func (b *fakeBackend) disconnect() {
	b.mu.Lock()
	b.alive = false
	observers := append([]func(){}, b.observers...)
	for _, p := range b.pages {
		p.kill()
	}
	b.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func (b *fakeBackend) pageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

func (b *fakeBackend) Close() error { return nil }

func testConfig(maxSessions int) *config.Config {
	return &config.Config{
		MaxSessions:      maxSessions,
		DefaultTimeout:   5 * time.Second,
		MaxTimeout:       10 * time.Second,
		LivenessInterval: time.Minute,
	}
}

func TestAcquire_CreatesAndReuses(t *testing.T) {
	b := newFakeBackend()
	p := New(testConfig(5), b)
	ctx := context.Background()

	first, err := p.Acquire(ctx, "client-a")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	second, err := p.Acquire(ctx, "client-a")
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if first != second {
		t.Error("Acquire() should return the same session for the same client")
	}
	if b.pageCount() != 1 {
		t.Errorf("backend created %d pages, want 1", b.pageCount())
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1", p.Count())
	}
}

func TestAcquire_InvalidClientID(t *testing.T) {
	p := New(testConfig(5), newFakeBackend())
	if _, err := p.Acquire(context.Background(), "  "); !errors.Is(err, types.ErrClientIDInvalid) {
		t.Errorf("Acquire(blank) error = %v, want ErrClientIDInvalid", err)
	}
}

func TestAcquire_CapacityExceeded(t *testing.T) {
	b := newFakeBackend()
	p := New(testConfig(2), b)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := p.Acquire(ctx, id); err != nil {
			t.Fatalf("Acquire(%q) error = %v", id, err)
		}
	}

	_, err := p.Acquire(ctx, "c")
	if !errors.Is(err, types.ErrCapacityExceeded) {
		t.Fatalf("Acquire at capacity error = %v, want ErrCapacityExceeded", err)
	}

	// Existing clients keep working at capacity
	if _, err := p.Acquire(ctx, "a"); err != nil {
		t.Errorf("re-Acquire(a) at capacity error = %v", err)
	}
}

func TestAcquire_RecreatesDeadSession(t *testing.T) {
	b := newFakeBackend()
	// MaxSessions 1: replacement must not trip the capacity check
	p := New(testConfig(1), b)
	ctx := context.Background()

	first, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	first.Page().(*fakePage).kill()

	second, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire() after page death error = %v", err)
	}
	if first == second {
		t.Error("expected a fresh session after the page died")
	}
	if !first.Page().(*fakePage).isClosed() {
		t.Error("dead page should have been closed during eviction")
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1", p.Count())
	}
}

func TestAcquire_CreationFailure(t *testing.T) {
	b := newFakeBackend()
	b.failNext = true
	p := New(testConfig(5), b)

	if _, err := p.Acquire(context.Background(), "a"); !errors.Is(err, types.ErrSessionCreationFailed) {
		t.Errorf("Acquire() error = %v, want ErrSessionCreationFailed", err)
	}
	if p.Count() != 0 {
		t.Errorf("Count() = %d after failed create, want 0", p.Count())
	}
}

func TestRelease(t *testing.T) {
	b := newFakeBackend()
	p := New(testConfig(5), b)
	ctx := context.Background()

	s, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if !p.Release("a") {
		t.Error("Release() = false for an existing session")
	}
	if !s.Page().(*fakePage).isClosed() {
		t.Error("released session's page should be closed")
	}
	if p.Release("a") {
		t.Error("second Release() = true, want false")
	}
	if p.Count() != 0 {
		t.Errorf("Count() = %d, want 0", p.Count())
	}
}

func TestStatus(t *testing.T) {
	b := newFakeBackend()
	p := New(testConfig(5), b)
	ctx := context.Background()

	if st := p.Status(ctx, "ghost"); st != nil {
		t.Errorf("Status(unknown) = %+v, want nil", st)
	}

	s, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	s.SetCurrentURL("https://example.com")

	st := p.Status(ctx, "a")
	if st == nil {
		t.Fatal("Status() = nil for an existing session")
	}
	if st.ClientID != "a" || st.CurrentURL != "https://example.com" || !st.Healthy {
		t.Errorf("Status() = %+v", st)
	}

	s.Page().(*fakePage).kill()
	if st := p.Status(ctx, "a"); st.Healthy {
		t.Error("Status() reports healthy for a dead page")
	}
}

func TestAllStatuses(t *testing.T) {
	b := newFakeBackend()
	p := New(testConfig(3), b)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := p.Acquire(ctx, id); err != nil {
			t.Fatalf("Acquire(%q) error = %v", id, err)
		}
	}

	ps := p.AllStatuses(ctx)
	if !ps.BackendAlive {
		t.Error("BackendAlive = false")
	}
	if ps.Capacity != 3 {
		t.Errorf("Capacity = %d, want 3", ps.Capacity)
	}
	if len(ps.Sessions) != 2 {
		t.Errorf("len(Sessions) = %d, want 2", len(ps.Sessions))
	}
}

func TestDisconnect_InvalidatesAll(t *testing.T) {
	b := newFakeBackend()
	p := New(testConfig(5), b)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := p.Acquire(ctx, id); err != nil {
			t.Fatalf("Acquire(%q) error = %v", id, err)
		}
	}

	b.disconnect()

	if p.Count() != 0 {
		t.Errorf("Count() = %d after disconnect, want 0", p.Count())
	}
	if st := p.Status(ctx, "a"); st != nil {
		t.Errorf("Status() after disconnect = %+v, want nil", st)
	}

	// The next acquire starts fresh over the (recovered) backend
	if _, err := p.Acquire(ctx, "a"); err != nil {
		t.Fatalf("Acquire() after disconnect error = %v", err)
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1", p.Count())
	}
}

func TestShutdown(t *testing.T) {
	b := newFakeBackend()
	p := New(testConfig(5), b)
	ctx := context.Background()

	s, err := p.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !s.Page().(*fakePage).isClosed() {
		t.Error("Shutdown() should close session pages")
	}
	if _, err := p.Acquire(ctx, "b"); !errors.Is(err, types.ErrPoolClosed) {
		t.Errorf("Acquire() after shutdown error = %v, want ErrPoolClosed", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestAcquire_ConcurrentSameClient(t *testing.T) {
	b := newFakeBackend()
	p := New(testConfig(5), b)
	ctx := context.Background()

	const goroutines = 16
	var wg sync.WaitGroup
	sessions := make([]*Session, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := p.Acquire(ctx, "shared")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1", p.Count())
	}
	if b.pageCount() != 1 {
		t.Errorf("backend created %d pages for one client, want 1", b.pageCount())
	}
	for i := 1; i < goroutines; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("concurrent acquires returned different sessions")
		}
	}
}

func TestAcquire_ConcurrentDistinctClientsHonorCapacity(t *testing.T) {
	b := newFakeBackend()
	b.pageDelay = 50 * time.Millisecond // keep every creation in flight at once
	p := New(testConfig(1), b)
	ctx := context.Background()

	clients := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, refused := 0, 0
	for _, id := range clients {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := p.Acquire(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, types.ErrCapacityExceeded):
				refused++
			default:
				t.Errorf("Acquire(%s) error = %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if created != 1 || refused != len(clients)-1 {
		t.Errorf("created = %d, refused = %d, want 1 and %d", created, refused, len(clients)-1)
	}
	if p.Count() > 1 {
		t.Errorf("Count() = %d, exceeds MaxSessions 1", p.Count())
	}
	if b.pageCount() != 1 {
		t.Errorf("backend created %d pages, want 1", b.pageCount())
	}
}

func TestAcquire_FailedCreationFreesSlot(t *testing.T) {
	b := newFakeBackend()
	b.failNext = true
	p := New(testConfig(1), b)
	ctx := context.Background()

	if _, err := p.Acquire(ctx, "a"); !errors.Is(err, types.ErrSessionCreationFailed) {
		t.Fatalf("Acquire() error = %v, want ErrSessionCreationFailed", err)
	}
	// The reserved slot must be returned, or the pool is permanently full.
	if _, err := p.Acquire(ctx, "b"); err != nil {
		t.Fatalf("Acquire() after failed creation error = %v", err)
	}
}
