package interfaces

import (
	"context"

	"storyroom-server/shared/models"
)

// UserSessionRepository stores per-user progress records, one per (user, session).
type UserSessionRepository interface {
	// Upsert keeps FirstJoinedAt of an existing record.
	Upsert(ctx context.Context, record models.UserGameSession) error
	ListByUser(ctx context.Context, userID string) ([]models.UserGameSession, error)
	Delete(ctx context.Context, userID, sessionID string) error
}
