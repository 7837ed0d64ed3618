package interfaces

import (
	"context"

	"storyroom-server/shared/models"
)

// StoryRepository reads the published story catalog.
type StoryRepository interface {
	GetByID(ctx context.Context, storyID string) (*models.StoryInfo, error)
}

// StorySource loads compiled story documents from blob storage.
type StorySource interface {
	Load(ctx context.Context, storyID string) ([]byte, error)
}
