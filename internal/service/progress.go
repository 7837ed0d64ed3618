package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"go.uber.org/zap"
)

// Progress keeps the per-user records that outlive sessions: which sessions a
// user can rejoin and which achievements they earned.
type Progress struct {
	records      interfaces.UserSessionRepository
	achievements interfaces.AchievementRepository
	identities   *IdentityRegistry
	now          func() time.Time
	logger       *zap.Logger
}

func NewProgress(records interfaces.UserSessionRepository, achievements interfaces.AchievementRepository, identities *IdentityRegistry, logger *zap.Logger) *Progress {
	return &Progress{
		records:      records,
		achievements: achievements,
		identities:   identities,
		now:          time.Now,
		logger:       logger.Named("Progress"),
	}
}

// Record upserts the progress record of the player in slot idx. Failures are
// logged only.
func (p *Progress) Record(ctx context.Context, s *models.Session, idx int) {
	slot := s.Players[idx]
	now := p.now()
	record := models.UserGameSession{
		UserID:        slot.UserID,
		SessionID:     s.ID,
		SessionName:   s.Name,
		FirstJoinedAt: now,
		LastJoinedAt:  now,
	}
	if slot.Data != nil {
		record.CharacterID = slot.Data.CharacterID
	}
	if err := p.records.Upsert(ctx, record); err != nil {
		p.logger.Error("Failed to upsert progress record",
			zap.String("sessionID", s.ID),
			zap.String("userID", slot.UserID),
			zap.Error(err),
		)
	}
}

// RecordAll upserts a record for every player of the session.
func (p *Progress) RecordAll(ctx context.Context, s *models.Session) {
	for i := range s.Players {
		p.Record(ctx, s, i)
	}
}

// Forget removes the user's record of a session. A missing record is not an error.
func (p *Progress) Forget(ctx context.Context, userID, sessionID string) {
	if err := p.records.Delete(ctx, userID, sessionID); err != nil && !errors.Is(err, models.ErrNotFound) {
		p.logger.Error("Failed to delete progress record",
			zap.String("sessionID", sessionID),
			zap.String("userID", userID),
			zap.Error(err),
		)
	}
}

// LeaveSession deletes the user's record, reporting ErrNotFound if none exists.
func (p *Progress) LeaveSession(ctx context.Context, userID, sessionID string) error {
	return p.records.Delete(ctx, userID, sessionID)
}

// Sessions lists the user's sessions, most recently joined first.
func (p *Progress) Sessions(ctx context.Context, userID string) ([]models.UserGameSession, error) {
	list, err := p.records.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].LastJoinedAt.After(list[j].LastJoinedAt) })
	return list, nil
}

func (p *Progress) Achievements(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	return p.achievements.ListByUser(ctx, userID)
}

// OnlinePlayers lists every identity with a live connection, sorted by username.
func (p *Progress) OnlinePlayers(ctx context.Context) ([]models.Identity, error) {
	bindings, err := p.identities.ListBindings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Identity, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, b.Identity())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
