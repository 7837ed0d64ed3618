package memstore

import (
	"context"
	"sync"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"
)

var _ interfaces.IdentityRepository = (*IdentityStore)(nil)

type storedToken struct {
	token    models.HandshakeToken
	deadline time.Time
}

type IdentityStore struct {
	mu     sync.Mutex
	now    func() time.Time
	tokens map[string]storedToken
	byConn map[string]models.Binding
	byUser map[string]models.Binding
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		now:    time.Now,
		tokens: make(map[string]storedToken),
		byConn: make(map[string]models.Binding),
		byUser: make(map[string]models.Binding),
	}
}

func (s *IdentityStore) SaveHandshakeToken(_ context.Context, token models.HandshakeToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Token] = storedToken{token: token, deadline: s.now().Add(ttl)}
	return nil
}

func (s *IdentityStore) ConsumeHandshakeToken(_ context.Context, token string) (*models.HandshakeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tokens[token]
	if !ok {
		return nil, models.ErrNotFound
	}
	delete(s.tokens, token)
	if !s.now().Before(st.deadline) {
		return nil, models.ErrNotFound
	}
	t := st.token
	return &t, nil
}

func (s *IdentityStore) SaveBinding(_ context.Context, binding models.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConn[binding.ConnectionID] = binding
	s.byUser[binding.UserID] = binding
	return nil
}

func (s *IdentityStore) GetByConnection(_ context.Context, connectionID string) (*models.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byConn[connectionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &b, nil
}

func (s *IdentityStore) GetByUser(_ context.Context, userID string) (*models.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byUser[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &b, nil
}

func (s *IdentityStore) DeleteBinding(_ context.Context, connectionID string) (*models.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byConn[connectionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	delete(s.byConn, connectionID)
	if reverse, ok := s.byUser[b.UserID]; ok && reverse.ConnectionID == connectionID {
		delete(s.byUser, b.UserID)
	}
	return &b, nil
}

func (s *IdentityStore) SetBindingSession(_ context.Context, connectionID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byConn[connectionID]
	if !ok {
		return models.ErrNotFound
	}
	b.SessionID = sessionID
	s.byConn[connectionID] = b
	if reverse, ok := s.byUser[b.UserID]; ok && reverse.ConnectionID == connectionID {
		s.byUser[b.UserID] = b
	}
	return nil
}

func (s *IdentityStore) ListBindings(_ context.Context) ([]models.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Binding, 0, len(s.byUser))
	for _, b := range s.byUser {
		out = append(out, b)
	}
	return out, nil
}
