package molviz

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// HubFactory creates the push channel for a new session.
type HubFactory func(SessionID) SessionHub

// SessionManager manages multiple sessions, each isolated from the others.
// Only the catalogue and decoder in SessionOptions are shared.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
	opts     SessionOptions
	hubs     HubFactory
}

// NewSessionManager creates an empty manager. hubs may be nil.
func NewSessionManager(opts SessionOptions, hubs HubFactory) *SessionManager {
	if opts.Logger == nil {
		opts.Logger = NewNoOpLogger()
	}
	return &SessionManager{
		sessions: make(map[SessionID]*Session),
		opts:     opts,
		hubs:     hubs,
	}
}

// DefaultSelection is the first catalogue preset in DefaultStyle.
func (sm *SessionManager) DefaultSelection() Selection {
	sel := Selection{Style: DefaultStyle}
	if sm.opts.Catalogue != nil {
		if cat := sm.opts.Catalogue(); cat != nil {
			sel.Source = PresetSource(cat.Default())
		}
	}
	return sel
}

// Create opens a session with a random ID and the default selection.
func (sm *SessionManager) Create() (*Session, error) {
	return sm.CreateWithID(SessionID(uuid.NewString()))
}

// CreateWithID opens a session with the given ID.
func (sm *SessionManager) CreateWithID(id SessionID) (*Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, exists := sm.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	var hub SessionHub
	if sm.hubs != nil {
		hub = sm.hubs(id)
	}
	s, err := NewSession(id, sm.DefaultSelection(), sm.opts, hub)
	if err != nil {
		if hub != nil {
			_ = hub.Close()
		}
		return nil, err
	}
	sm.sessions[id] = s
	return s, nil
}

// Get looks up a session.
func (sm *SessionManager) Get(id SessionID) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// Delete closes and removes a session.
func (sm *SessionManager) Delete(id SessionID) error {
	sm.mu.Lock()
	s, exists := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Close()
}

// List returns every session ID, sorted.
func (sm *SessionManager) List() []SessionID {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	ids := make([]SessionID, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close closes every session.
func (sm *SessionManager) Close() error {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[SessionID]*Session)
	sm.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
