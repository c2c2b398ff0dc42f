package collab

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RegistryConfig holds tunables for the session registry.
type RegistryConfig struct {
	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int

	// SweepInterval is how often the registry reclaims stale sessions
	// (sessions whose every connection is closed). Zero disables the sweep.
	SweepInterval time.Duration
}

// DefaultRegistryConfig returns a RegistryConfig with sensible defaults.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		MaxSessions:   0,
		SweepInterval: 30 * time.Second,
	}
}

// CreateSpec carries everything needed to create a session with its
// creator already in the roster.
type CreateSpec struct {
	Name           string
	SimulationID   int
	DepartmentType string
	UserID         string
	Username       string
	Conn           Conn
}

// Registry is the process-wide map of live sessions. It is constructed once
// at process start and injected into the connection-handling layer; there is
// no package-level instance, so tests build a fresh one each.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	config *RegistryConfig

	// Sweep loop lifecycle
	done      chan struct{}
	sweepDone chan struct{}
	closed    atomic.Bool

	// Metrics
	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int

	// Callbacks
	onSessionCreate func(*Session)
	onSessionClose  func(*Session)
	onBroadcastDrop func()

	logger *slog.Logger
}

// NewRegistry creates a session registry and starts its sweep loop if the
// config enables one.
func NewRegistry(config *RegistryConfig, logger *slog.Logger) *Registry {
	if config == nil {
		config = DefaultRegistryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		sessions:  make(map[string]*Session),
		config:    config,
		done:      make(chan struct{}),
		sweepDone: make(chan struct{}),
		logger:    logger.With("component", "registry"),
	}

	if config.SweepInterval > 0 {
		go r.sweepLoop()
	} else {
		close(r.sweepDone)
	}

	return r
}

// Create creates a new session from spec with the creator as its only
// participant. The session ID is freshly generated.
func (r *Registry) Create(spec CreateSpec) (*Session, error) {
	r.mu.Lock()

	if r.closed.Load() {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if r.config.MaxSessions > 0 && len(r.sessions) >= r.config.MaxSessions {
		r.mu.Unlock()
		return nil, ErrMaxSessionsReached
	}

	session := newSession(uuid.NewString(), spec.Name, spec, r.logger)
	session.onBroadcastDrop = r.onBroadcastDrop
	r.sessions[session.ID] = session
	r.totalCreated.Add(1)
	if len(r.sessions) > r.peakSessions {
		r.peakSessions = len(r.sessions)
	}
	onCreate := r.onSessionCreate
	r.mu.Unlock()

	if onCreate != nil {
		onCreate(session)
	}

	r.logger.Info("session created",
		"session_id", session.ID,
		"name", session.Name,
		"owner", session.Owner,
		"active_sessions", r.Count())

	return session, nil
}

// Get retrieves a session by ID. Returns nil when absent.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove deletes a session by ID regardless of roster state.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	session := r.removeLocked(id)
	r.mu.Unlock()
	r.finishRemoval(session)
}

// RemoveIfEmpty deletes the session only when its roster is empty.
// It reports whether a removal happened.
func (r *Registry) RemoveIfEmpty(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok || !session.Empty() {
		r.mu.Unlock()
		return false
	}
	r.removeLocked(id)
	r.mu.Unlock()
	r.finishRemoval(session)
	return true
}

func (r *Registry) removeLocked(id string) *Session {
	session, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	r.totalClosed.Add(1)
	return session
}

func (r *Registry) finishRemoval(session *Session) {
	if session == nil {
		return
	}
	if r.onSessionClose != nil {
		r.onSessionClose(session)
	}
	r.logger.Info("session removed",
		"session_id", session.ID,
		"messages", session.MessageCount(),
		"active_sessions", r.Count())
}

// List returns summaries of all live sessions ordered by creation time.
// Summaries never expose connection handles.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	summaries := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, s.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats contains aggregated registry statistics.
type Stats struct {
	Active       int    `json:"active"`
	TotalCreated uint64 `json:"totalCreated"`
	TotalClosed  uint64 `json:"totalClosed"`
	Peak         int    `json:"peak"`
}

// Stats returns aggregated registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	active := len(r.sessions)
	peak := r.peakSessions
	r.mu.RUnlock()

	return Stats{
		Active:       active,
		TotalCreated: r.totalCreated.Load(),
		TotalClosed:  r.totalClosed.Load(),
		Peak:         peak,
	}
}

// SetOnSessionCreate sets the callback invoked after a session is created.
func (r *Registry) SetOnSessionCreate(fn func(*Session)) {
	r.onSessionCreate = fn
}

// SetOnSessionClose sets the callback invoked after a session is removed.
func (r *Registry) SetOnSessionClose(fn func(*Session)) {
	r.onSessionClose = fn
}

// SetOnBroadcastDrop sets the observer invoked when a broadcast write is
// skipped. Applies to sessions created after the call.
func (r *Registry) SetOnBroadcastDrop(fn func()) {
	r.onBroadcastDrop = fn
}

// sweepLoop periodically reclaims stale sessions. It is the backstop for
// connections that died without the read loop observing a disconnect.
func (r *Registry) sweepLoop() {
	defer close(r.sweepDone)

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.SweepStale()
		case <-r.done:
			return
		}
	}
}

// SweepStale removes every session whose connections are all closed and
// returns the number removed.
func (r *Registry) SweepStale() int {
	r.mu.RLock()
	candidates := make([]*Session, 0)
	for _, s := range r.sessions {
		if s.Stale() {
			candidates = append(candidates, s)
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, s := range candidates {
		r.mu.Lock()
		// Re-check under the write lock; a participant may have joined since.
		if cur, ok := r.sessions[s.ID]; !ok || !cur.Stale() {
			r.mu.Unlock()
			continue
		}
		r.removeLocked(s.ID)
		r.mu.Unlock()
		r.finishRemoval(s)
		removed++
	}

	if removed > 0 {
		r.logger.Info("swept stale sessions",
			"count", removed,
			"remaining", r.Count())
	}
	return removed
}

// Shutdown stops the sweep loop and tears down every session, closing all
// participant connections concurrently.
func (r *Registry) Shutdown() {
	if r.closed.Swap(true) {
		return
	}
	close(r.done)
	<-r.sweepDone

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.closeConns()
			r.totalClosed.Add(1)
			if r.onSessionClose != nil {
				r.onSessionClose(s)
			}
		}(session)
	}
	wg.Wait()

	r.logger.Info("registry shutdown", "closed_sessions", len(sessions))
}
