package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxMutationAttempts bounds the read-modify-write loops on versioned records.
const maxMutationAttempts = 3

// SessionStore owns session records.
type SessionStore struct {
	repo           interfaces.SessionRepository
	identities     *IdentityRegistry
	endedRetention time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

func NewSessionStore(repo interfaces.SessionRepository, identities *IdentityRegistry, endedRetention time.Duration, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		repo:           repo,
		identities:     identities,
		endedRetention: endedRetention,
		now:            time.Now,
		logger:         logger.Named("SessionStore"),
	}
}

// ConvertRoomToSession creates a session with one slot per room player, in
// room order. Offline players get a slot without connection.
func (s *SessionStore) ConvertRoomToSession(ctx context.Context, room *models.Room) (*models.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	now := s.now()
	session := &models.Session{
		ID:        id.String(),
		Name:      room.Name,
		HostID:    room.HostID,
		Phase:     models.PhaseStoryVote,
		Players:   make([]models.PlayerSlot, 0, len(room.Players)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, userID := range room.Players {
		slot := models.PlayerSlot{UserID: userID, Data: models.NewPlayerData()}
		b, err := s.identities.ResolveByIdentity(ctx, userID)
		switch {
		case err == nil:
			slot.ConnectionID = b.ConnectionID
			slot.Username = b.Username
		case !isOffline(err):
			return nil, fmt.Errorf("failed to resolve player %s: %w", userID, err)
		}
		session.Players = append(session.Players, slot)
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("Session created from room",
		zap.String("sessionID", session.ID),
		zap.String("hostID", room.HostID),
		zap.Int("players", len(session.Players)),
	)
	return session, nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.repo.Get(ctx, sessionID)
}

// Save writes session if its version did not move since it was read.
func (s *SessionStore) Save(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = s.now()
	return s.repo.Update(ctx, session)
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// MarkEnded saves the session in phase ended and schedules its removal.
func (s *SessionStore) MarkEnded(ctx context.Context, session *models.Session) error {
	session.Phase = models.PhaseEnded
	if err := s.Save(ctx, session); err != nil {
		return err
	}
	if err := s.repo.Expire(ctx, session.ID, s.endedRetention); err != nil {
		// The ended record is already stored; it only outlives its retention.
		sessionExpiryFailuresTotal.Inc()
		s.logger.Warn("Failed to schedule session expiry",
			zap.String("sessionID", session.ID),
			zap.Error(err),
		)
	}
	s.logger.Info("Session ended", zap.String("sessionID", session.ID))
	return nil
}

// Mutate re-reads and retries fn when another writer moved the version.
func (s *SessionStore) Mutate(ctx context.Context, sessionID string, fn func(*models.Session) error) (*models.Session, error) {
	var lastErr error
	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		session, err := s.repo.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if err := fn(session); err != nil {
			return nil, err
		}
		lastErr = s.Save(ctx, session)
		if lastErr == nil {
			return session, nil
		}
		if !errors.Is(lastErr, models.ErrConflict) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}
