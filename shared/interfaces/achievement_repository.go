package interfaces

import (
	"context"

	"storyroom-server/shared/models"
)

// AchievementRepository is the achievement store of stories and users.
type AchievementRepository interface {
	Get(ctx context.Context, storyID, achievementID string) (*models.Achievement, error)
	Award(ctx context.Context, achievementID, storyID, userID string) error
	HasAward(ctx context.Context, achievementID, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.UserAchievement, error)
}
