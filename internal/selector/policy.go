// Package selector normalizes, validates, and expands CSS selectors into
// ordered resolution plans. Fallback generation is driven by a policy
// that ships with embedded defaults and can be overridden from a YAML
// file, with optional hot-reload.
package selector

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Policy configures fallback generation and content waiting.
type Policy struct {
	// Keywords maps a substring of the failed selector to alternate
	// selectors worth trying for that kind of element.
	Keywords map[string][]string `yaml:"keywords"`

	// GenericLadder is the ordered list of broad container selectors
	// appended to every resolution plan as a last resort.
	GenericLadder []string `yaml:"generic_ladder"`

	// LoadingIndicators are selectors whose presence means the page is
	// still rendering; extraction waits for them to disappear.
	LoadingIndicators []string `yaml:"loading_indicators"`
}

// Validate checks that the policy is usable.
func (p *Policy) Validate() error {
	if len(p.GenericLadder) == 0 {
		return fmt.Errorf("policy must define at least one generic_ladder selector")
	}
	return nil
}

// DefaultPolicy returns the compiled-in fallback policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Keywords: map[string][]string{
			"button":  {"button", ".btn", "[role=button]", "input[type=submit]"},
			"comment": {".comment", ".comments", ".comment-list", "[class*=comment]"},
			"content": {".content", "#content", ".main-content", "article", "main"},
			"form":    {"form", ".form"},
			"image":   {"img", "figure img", ".image"},
			"nav":     {"nav", ".nav", ".navbar", ".navigation", "header nav"},
			"price":   {".price", ".amount", "[data-price]"},
			"title":   {"h1", ".title", "#title", ".headline", "header h1"},
			"video":   {"video", ".video", ".video-info", ".video-title", ".player"},
		},
		GenericLadder: []string{
			"main", "article", ".content", "#content", ".main", "#main", "body",
		},
		LoadingIndicators: []string{
			".loading", ".spinner", ".loader", "[data-loading]", ".skeleton", ".placeholder",
		},
	}
}

// Manager provides hot-reload capable policy access. Reads are lock-free
// using atomic.Value.
type Manager struct {
	embedded     *Policy
	current      atomic.Value // *Policy
	externalPath string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex // protects reload operations
	closed       bool
	reloadCount  int64
}

// NewManager creates a policy manager. If externalPath is empty, only the
// embedded policy is used. If hotReload is true and externalPath is set,
// file changes trigger reloads.
func NewManager(externalPath string, hotReload bool) (*Manager, error) {
	m := &Manager{
		embedded:     DefaultPolicy(),
		externalPath: externalPath,
		stopCh:       make(chan struct{}),
	}
	m.current.Store(m.embedded)

	if externalPath != "" {
		if err := m.load(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to load selector policy file, using embedded defaults")
		} else {
			log.Info().Str("path", externalPath).Msg("Loaded selector policy file")
		}

		if hotReload {
			if err := m.startWatcher(); err != nil {
				log.Warn().
					Err(err).
					Str("path", externalPath).
					Msg("Failed to start policy watcher, hot-reload disabled")
			} else {
				log.Info().Str("path", externalPath).Msg("Hot-reload enabled for selector policy")
			}
		}
	}

	return m, nil
}

// Get returns the current policy. Lock-free.
func (m *Manager) Get() *Policy {
	return m.current.Load().(*Policy)
}

// Reload re-reads the external policy file. On failure the previous
// policy remains in use.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.externalPath == "" {
		return fmt.Errorf("no external policy path configured")
	}
	return m.loadLocked()
}

// Close stops the file watcher. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *Manager) loadLocked() error {
	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var external Policy
	if err := yaml.Unmarshal(data, &external); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	merged := m.mergeWithEmbedded(&external)
	if err := merged.Validate(); err != nil {
		return err
	}

	m.current.Store(merged)
	m.reloadCount++
	log.Info().Int64("reload_count", m.reloadCount).Msg("Selector policy reloaded")
	return nil
}

// mergeWithEmbedded lets the external file override section by section;
// the embedded policy fills anything left empty.
func (m *Manager) mergeWithEmbedded(external *Policy) *Policy {
	merged := &Policy{}

	if len(external.Keywords) > 0 {
		merged.Keywords = external.Keywords
	} else {
		merged.Keywords = m.embedded.Keywords
	}
	if len(external.GenericLadder) > 0 {
		merged.GenericLadder = external.GenericLadder
	} else {
		merged.GenericLadder = m.embedded.GenericLadder
	}
	if len(external.LoadingIndicators) > 0 {
		merged.LoadingIndicators = external.LoadingIndicators
	} else {
		merged.LoadingIndicators = m.embedded.LoadingIndicators
	}

	return merged
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(m.externalPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch file: %w", err)
	}
	m.watcher = watcher

	m.wg.Add(1)
	go m.watchFile()
	return nil
}

func (m *Manager) watchFile() {
	defer m.wg.Done()

	// Coalesce rapid editor save events.
	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer
	var debouncing bool

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Selector policy file changed")

			if debouncing {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(debounceDelay)
			} else {
				debouncing = true
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := m.Reload(); err != nil {
						log.Warn().
							Err(err).
							Str("path", m.externalPath).
							Msg("Policy hot-reload failed, keeping previous policy")
					}
					debouncing = false
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Policy watcher error")

		case <-m.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

// EmbeddedManager returns a manager that serves only the embedded policy.
func EmbeddedManager() *Manager {
	m := &Manager{
		embedded: DefaultPolicy(),
		stopCh:   make(chan struct{}),
	}
	m.current.Store(m.embedded)
	return m
}
