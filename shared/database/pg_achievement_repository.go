package database

import (
	"context"
	"errors"
	"fmt"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.AchievementRepository = (*pgAchievementRepository)(nil)

type pgAchievementRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

func NewPgAchievementRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.AchievementRepository {
	return &pgAchievementRepository{
		db:     db,
		logger: logger.Named("PgAchievementRepo"),
	}
}

const getAchievementQuery = `
SELECT id, story_id, title, description, public
FROM story_achievements
WHERE story_id = $1 AND id = $2`

const awardAchievementQuery = `
INSERT INTO user_achievements (user_id, achievement_id, story_id, awarded_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, achievement_id) DO NOTHING`

const hasAwardQuery = `
SELECT EXISTS (SELECT 1 FROM user_achievements WHERE achievement_id = $1 AND user_id = $2)`

const listUserAchievementsQuery = `
SELECT ua.user_id, ua.achievement_id, ua.story_id, sa.title, ua.awarded_at
FROM user_achievements ua
JOIN story_achievements sa ON sa.id = ua.achievement_id
WHERE ua.user_id = $1
ORDER BY ua.awarded_at DESC`

func (r *pgAchievementRepository) Get(ctx context.Context, storyID, achievementID string) (*models.Achievement, error) {
	var achievement models.Achievement
	err := pgxscan.Get(ctx, r.db, &achievement, getAchievementQuery, storyID, achievementID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get achievement",
			zap.String("storyID", storyID),
			zap.String("achievementID", achievementID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get achievement: %w", err)
	}
	return &achievement, nil
}

func (r *pgAchievementRepository) Award(ctx context.Context, achievementID, storyID, userID string) error {
	if _, err := r.db.Exec(ctx, awardAchievementQuery, userID, achievementID, storyID); err != nil {
		return fmt.Errorf("failed to award achievement %s to %s: %w", achievementID, userID, err)
	}
	return nil
}

func (r *pgAchievementRepository) HasAward(ctx context.Context, achievementID, userID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, hasAwardQuery, achievementID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check award: %w", err)
	}
	return exists, nil
}

func (r *pgAchievementRepository) ListByUser(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	awards := []models.UserAchievement{}
	if err := pgxscan.Select(ctx, r.db, &awards, listUserAchievementsQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to list user achievements: %w", err)
	}
	return awards, nil
}
