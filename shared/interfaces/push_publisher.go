package interfaces

import (
	"context"

	"storyroom-server/shared/models"
)

// PushEventPublisher defines the interface for publishing push notification events.
type PushEventPublisher interface {
	PublishPushNotification(ctx context.Context, payload models.PushNotificationPayload) error
}
