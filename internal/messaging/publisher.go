package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

var _ interfaces.PushEventPublisher = (*PushPublisher)(nil)

// amqpPublisher is the part of *amqp.Channel the publisher needs.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// PushPublisher queues push notifications for the notification service.
type PushPublisher struct {
	channel   amqpPublisher
	queueName string
	logger    *zap.Logger
}

// NewPushPublisher opens a channel on conn and declares the durable queue.
func NewPushPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*PushPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("push publisher: failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("push publisher: failed to declare queue '%s': %w", queueName, err)
	}
	logger.Info("Push publisher initialized", zap.String("queue", queueName))
	return newPushPublisher(ch, queueName, logger), nil
}

func newPushPublisher(ch amqpPublisher, queueName string, logger *zap.Logger) *PushPublisher {
	return &PushPublisher{channel: ch, queueName: queueName, logger: logger.Named("PushPublisher")}
}

func (p *PushPublisher) PublishPushNotification(ctx context.Context, payload models.PushNotificationPayload) error {
	if p.channel == nil {
		return errors.New("push publisher: channel is not initialized")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal push notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		AppId:        "storyroom-server",
	})
	if err != nil {
		p.logger.Error("Failed to publish push notification",
			zap.String("queue", p.queueName),
			zap.String("userID", payload.UserID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish to queue %s: %w", p.queueName, err)
	}
	p.logger.Debug("Push notification published", zap.String("queue", p.queueName), zap.String("userID", payload.UserID))
	return nil
}

func (p *PushPublisher) Close() error {
	if p.channel == nil {
		return nil
	}
	return p.channel.Close()
}
