package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"
)

var _ interfaces.SessionRepository = (*SessionStore)(nil)

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	timers   map[string]*time.Timer
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]models.Session),
		timers:   make(map[string]*time.Timer),
	}
}

func (s *SessionStore) Create(_ context.Context, session *models.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: session %s already exists", models.ErrConflict, session.ID)
	}
	session.Version = 1
	s.sessions[session.ID] = clone(*session)
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := clone(session)
	return &out, nil
}

func (s *SessionStore) Update(_ context.Context, session *models.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return models.ErrNotFound
	}
	if current.Version != session.Version {
		return fmt.Errorf("%w: session %s is at version %d, expected %d", models.ErrConflict, session.ID, current.Version, session.Version)
	}
	session.Version++
	s.sessions[session.ID] = clone(*session)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
	return nil
}

func (s *SessionStore) Expire(_ context.Context, sessionID string, after time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return models.ErrNotFound
	}
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(after, func() {
		_ = s.Delete(context.Background(), sessionID)
	})
	return nil
}
