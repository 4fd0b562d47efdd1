package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/sessionkit"
)

// ErrManagerClosed is returned by Open after CloseAll.
var ErrManagerClosed = errors.New("manager is closed")

// Manager is a registry of live sessions keyed by id.
type Manager interface {
	// Open starts a session under id, closing and replacing any live
	// session already registered under it. An empty id gets a random UUID.
	Open(ctx context.Context, id string, opts ...SessionOption) (Session, error)

	// Get retrieves a live session by id.
	Get(id string) (Session, bool)

	// Close closes and unregisters one session.
	Close(id string) error

	// CloseAll closes every session and refuses further opens.
	CloseAll() error

	// List returns the ids of all registered sessions, sorted.
	List() []string

	// Count returns the number of registered sessions.
	Count() int

	// Info returns information about a session.
	Info(id string) (*Info, bool)

	// SetDefaultSessionOptions replaces the options applied to future opens.
	SetDefaultSessionOptions(opts ...SessionOption)
}

// manager implements Manager.
type manager struct {
	config     managerConfig
	logger     *slog.Logger
	sessions   map[string]*session
	mu         sync.RWMutex
	closed     bool
	closedOnce sync.Once
	stopClean  chan struct{}

	// opener is replaced in tests.
	opener func(ctx context.Context, opts ...SessionOption) (*session, error)
}

// NewManager creates a new session manager.
func NewManager(opts ...ManagerOption) Manager {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &manager{
		config:    cfg,
		logger:    logger,
		sessions:  make(map[string]*session),
		stopClean: make(chan struct{}),
		opener:    open,
	}

	if cfg.sessionTTL > 0 && cfg.cleanupInterval > 0 {
		go m.cleanupLoop()
	}

	return m
}

// Open implements Manager.
func (m *manager) Open(ctx context.Context, id string, opts ...SessionOption) (Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrManagerClosed
	}
	_, replacing := m.sessions[id]
	if !replacing && len(m.sessions) >= m.config.maxSessions {
		m.mu.RUnlock()
		return nil, fmt.Errorf("max sessions reached (%d)", m.config.maxSessions)
	}
	allOpts := make([]SessionOption, 0, len(m.config.defaultOpts)+len(opts)+1)
	allOpts = append(allOpts, m.config.defaultOpts...)
	m.mu.RUnlock()

	allOpts = append(allOpts, opts...)
	allOpts = append(allOpts, WithSessionID(id))

	s, err := m.opener(ctx, allOpts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = s.Close()
		return nil, ErrManagerClosed
	}
	old, replacing := m.sessions[id]
	if !replacing && len(m.sessions) >= m.config.maxSessions {
		m.mu.Unlock()
		_ = s.Close()
		return nil, fmt.Errorf("max sessions reached (%d)", m.config.maxSessions)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	if old != nil {
		m.logger.Debug("replacing session", slog.String("session", id))
		_ = old.Close()
	}

	go m.watchSession(s)
	return s, nil
}

// watchSession removes a session from the map when it ends, unless it has
// already been replaced.
func (m *manager) watchSession(s *session) {
	<-s.done
	m.mu.Lock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
	m.mu.Unlock()
	m.logger.Debug("session removed", slog.String("session", s.id), slog.Any("cause", s.Err()))
}

// Get implements Manager.
func (m *manager) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return s, true
}

// Close implements Manager.
func (m *manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return sessionkit.NewError(id, "close", sessionkit.ErrSessionNotFound)
	}
	return s.Close()
}

// CloseAll implements Manager.
func (m *manager) CloseAll() error {
	m.closedOnce.Do(func() {
		close(m.stopClean)
	})

	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(sessions))
	for i, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Close()
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// List implements Manager.
func (m *manager) List() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Count implements Manager.
func (m *manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Info implements Manager.
func (m *manager) Info(id string) (*Info, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	info := s.Info()
	return &info, true
}

// SetDefaultSessionOptions implements Manager.
func (m *manager) SetDefaultSessionOptions(opts ...SessionOption) {
	m.mu.Lock()
	m.config.defaultOpts = opts
	m.mu.Unlock()
}

// cleanupLoop periodically closes idle sessions.
func (m *manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopClean:
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

// cleanupExpired closes sessions that have been idle longer than the TTL.
func (m *manager) cleanupExpired() {
	cutoff := time.Now().Add(-m.config.sessionTTL)
	for _, s := range m.expiredSessions(cutoff) {
		if !m.removeIfIdle(s, cutoff) {
			continue
		}
		m.logger.Debug("closing idle session", slog.String("session", s.id))
		if err := s.Close(); err != nil {
			m.logger.Warn("close idle session", slog.String("session", s.id), slog.Any("error", err))
		}
	}
}

func (m *manager) expiredSessions(cutoff time.Time) []*session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var expired []*session
	for _, s := range m.sessions {
		if isIdle(s, cutoff) {
			expired = append(expired, s)
		}
	}
	return expired
}

// removeIfIdle unregisters s if it is still the session under its id and
// still idle.
func (m *manager) removeIfIdle(s *session, cutoff time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions[s.id] != s || !isIdle(s, cutoff) {
		return false
	}
	delete(m.sessions, s.id)
	return true
}

// isIdle reports whether s has had no traffic since cutoff and is not
// waiting on a reply.
func isIdle(s *session, cutoff time.Time) bool {
	return s.pending.len() == 0 && s.idleSince().Before(cutoff)
}
