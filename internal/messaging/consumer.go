package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storyroom-server/internal/service"
	"storyroom-server/shared/constants"
	"storyroom-server/shared/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const consumerTag = "storyroom-server-client-updates"

// UserSender delivers an event to the live connection of each user.
type UserSender interface {
	SendToUsers(ctx context.Context, userIDs []string, payload interface{}) service.Delivery
}

// ClientUpdateConsumer relays client updates published by other services to
// the user's live connection.
type ClientUpdateConsumer struct {
	conn      *amqp.Connection
	sender    UserSender
	queueName string
	logger    *zap.Logger
}

func NewClientUpdateConsumer(conn *amqp.Connection, sender UserSender, queueName string, logger *zap.Logger) *ClientUpdateConsumer {
	return &ClientUpdateConsumer{
		conn:      conn,
		sender:    sender,
		queueName: queueName,
		logger:    logger.Named("ClientUpdateConsumer"),
	}
}

// StartConsuming blocks until ctx is done or the delivery channel closes.
func (c *ClientUpdateConsumer) StartConsuming(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", c.queueName, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(q.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.logger.Info("Consuming client updates", zap.String("queue", q.Name))

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				c.logger.Info("Client update channel closed")
				return nil
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.logger.Warn("Client update dropped", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		case <-ctx.Done():
			c.logger.Info("Stopping client update consumer")
			return nil
		}
	}
}

var errUserOffline = errors.New("user has no live connection")

func (c *ClientUpdateConsumer) handle(ctx context.Context, body []byte) error {
	var update models.ClientUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("%w: malformed client update: %v", models.ErrInvalid, err)
	}
	if update.UserID == "" {
		return fmt.Errorf("%w: client update without user_id", models.ErrInvalid)
	}
	delivery := c.sender.SendToUsers(ctx, []string{update.UserID}, models.NewEvent(constants.WSEventClientUpdate, update))
	if len(delivery.Delivered) == 0 {
		return fmt.Errorf("%w: %s", errUserOffline, update.UserID)
	}
	c.logger.Debug("Client update delivered", zap.String("userID", update.UserID), zap.String("action", update.Action))
	return nil
}
