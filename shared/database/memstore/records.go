package memstore

import (
	"context"
	"sort"
	"sync"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"
)

var _ interfaces.UserSessionRepository = (*UserSessionStore)(nil)

type UserSessionStore struct {
	mu      sync.Mutex
	records map[string]map[string]models.UserGameSession
}

func NewUserSessionStore() *UserSessionStore {
	return &UserSessionStore{records: make(map[string]map[string]models.UserGameSession)}
}

func (s *UserSessionStore) Upsert(_ context.Context, record models.UserGameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.records[record.UserID]
	if !ok {
		byUser = make(map[string]models.UserGameSession)
		s.records[record.UserID] = byUser
	}
	if existing, ok := byUser[record.SessionID]; ok {
		record.FirstJoinedAt = existing.FirstJoinedAt
		if record.CharacterID == "" {
			record.CharacterID = existing.CharacterID
		}
	} else {
		record.FirstJoinedAt = record.LastJoinedAt
	}
	byUser[record.SessionID] = record
	return nil
}

func (s *UserSessionStore) ListByUser(_ context.Context, userID string) ([]models.UserGameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UserGameSession, 0, len(s.records[userID]))
	for _, r := range s.records[userID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastJoinedAt.After(out[j].LastJoinedAt) })
	return out, nil
}

func (s *UserSessionStore) Delete(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID][sessionID]; !ok {
		return models.ErrNotFound
	}
	delete(s.records[userID], sessionID)
	return nil
}
