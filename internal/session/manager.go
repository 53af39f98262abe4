package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pjw7536/react-timeline2/internal/models"
	"github.com/pjw7536/react-timeline2/internal/parser"
	"github.com/pjw7536/react-timeline2/internal/source"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MaxViews limits concurrent views to prevent memory exhaustion
const MaxViews = 50

// SessionMaxAge is how long an untouched view is kept before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep views that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrViewNotFound = errors.New("view not found")
	ErrTooManyViews = errors.New("too many open views")
	ErrNotReady     = errors.New("view has no loadable context")
	ErrUnknownNode  = errors.New("unknown group node")
)

// Settings are shared by every view of a manager.
type Settings struct {
	Fetcher  source.Fetcher
	Registry *parser.Registry
	// Continuous reconstructs state kinds into back-to-back intervals.
	Continuous bool
	Location   *time.Location
	ShowLegend bool
	MaxViews   int
	// FetchConcurrency bounds the per-view kind fetches. Zero means unbounded.
	FetchConcurrency int
	LoginURL         string
	InvalidRedirect  string
	RedirectDelay    time.Duration
}

// DefaultSettings returns settings around f with the product defaults.
func DefaultSettings(f source.Fetcher) Settings {
	return Settings{
		Fetcher:         f,
		Registry:        parser.GetGlobalRegistry(),
		Continuous:      true,
		Location:        time.Local,
		MaxViews:        MaxViews,
		LoginURL:        "/sso",
		InvalidRedirect: "/timeline",
		RedirectDelay:   1500 * time.Millisecond,
	}
}

// Manager holds the open views.
type Manager struct {
	views    map[string]*View
	mu       sync.RWMutex
	settings *Settings
}

// NewManager creates a manager. Zero fields of settings get defaults.
func NewManager(settings Settings) *Manager {
	if settings.Registry == nil {
		settings.Registry = parser.GetGlobalRegistry()
	}
	if settings.Location == nil {
		settings.Location = time.Local
	}
	if settings.MaxViews <= 0 {
		settings.MaxViews = MaxViews
	}
	if settings.InvalidRedirect == "" {
		settings.InvalidRedirect = "/timeline"
	}
	return &Manager{
		views:    make(map[string]*View),
		settings: &settings,
	}
}

// Fetcher returns the data source shared by the views.
func (m *Manager) Fetcher() source.Fetcher {
	return m.settings.Fetcher
}

// Create opens a view, loading initial when it is a complete context.
func (m *Manager) Create(initial *models.DrilldownContext, validate bool) (*View, error) {
	m.cleanupOldViewsIfNeeded()

	m.mu.Lock()
	if len(m.views) >= m.settings.MaxViews {
		m.mu.Unlock()
		return nil, ErrTooManyViews
	}
	v := newView(uuid.New().String(), m.settings)
	m.views[v.id] = v
	m.mu.Unlock()

	log.Info().Str("component", "session").Str("view", shortID(v.id)).Msg("view created")
	if initial != nil {
		v.SetContext(*initial, validate)
	}
	return v, nil
}

// Get returns the view with id and marks it accessed.
func (m *Manager) Get(id string) (*View, bool) {
	m.mu.RLock()
	v, ok := m.views[id]
	m.mu.RUnlock()
	if ok {
		v.touch()
	}
	return v, ok
}

// Touch marks a view as in use. Returns false if it does not exist.
func (m *Manager) Touch(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// Delete closes and removes a view.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	v, ok := m.views[id]
	delete(m.views, id)
	m.mu.Unlock()
	if ok {
		v.close()
		log.Info().Str("component", "session").Str("view", shortID(id)).Msg("view closed")
	}
	return ok
}

// Count returns the number of open views.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// CleanupOldSessions closes views not accessed within maxAge. Views touched
// within the keep-alive window always survive. Returns the number closed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	now := time.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	var closed []*View
	m.mu.Lock()
	for id, v := range m.views {
		last := v.LastAccess()
		if last.After(keepAliveCutoff) {
			continue
		}
		if last.Before(cutoff) {
			delete(m.views, id)
			closed = append(closed, v)
		}
	}
	m.mu.Unlock()

	for _, v := range closed {
		v.close()
		log.Info().Str("component", "session").Str("view", shortID(v.id)).
			Dur("idle", time.Since(v.LastAccess()).Round(time.Second)).Msg("cleaned up aged view")
	}
	return len(closed)
}

// cleanupOldViewsIfNeeded frees the least recently used views outside the
// keep-alive window when the limit is reached.
func (m *Manager) cleanupOldViewsIfNeeded() {
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	m.mu.Lock()
	if len(m.views) < m.settings.MaxViews {
		m.mu.Unlock()
		return
	}
	var idle []*View
	for _, v := range m.views {
		if v.LastAccess().Before(keepAliveCutoff) {
			idle = append(idle, v)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].LastAccess().Before(idle[j].LastAccess()) })

	toFree := len(m.views) - m.settings.MaxViews + 1
	var closed []*View
	for _, v := range idle {
		if len(closed) >= toFree {
			break
		}
		delete(m.views, v.id)
		closed = append(closed, v)
	}
	m.mu.Unlock()

	for _, v := range closed {
		v.close()
		log.Info().Str("component", "session").Str("view", shortID(v.id)).Msg("closed idle view to free memory")
	}
}
