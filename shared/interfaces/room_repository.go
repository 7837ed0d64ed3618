package interfaces

import (
	"context"

	"storyroom-server/shared/models"
)

// RoomRepository persists rooms keyed by host. Update is a compare-and-swap
// on Room.Version: models.ErrConflict when the stored version moved.
type RoomRepository interface {
	// Put overwrites the host's room and resets its version.
	Put(ctx context.Context, room *models.Room) error
	Get(ctx context.Context, hostID string) (*models.Room, error)
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, hostID string) error
	List(ctx context.Context) ([]models.Room, error)
}
