package interfaces

import (
	"context"
	"time"

	"storyroom-server/shared/models"
)

// SessionRepository persists sessions. Update is a compare-and-swap on
// Session.Version and fails with models.ErrConflict when it moved.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, sessionID string) error
	// Expire schedules the record's removal.
	Expire(ctx context.Context, sessionID string, after time.Duration) error
}
