//go:build integration

package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storyroom-server/internal/service"
	"storyroom-server/shared/constants"
	"storyroom-server/shared/models"

	"github.com/docker/docker/client"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	testPushQueue          = "test_push_notifications"
	testClientUpdatesQueue = "test_client_updates"
)

type MessagingIntegrationSuite struct {
	suite.Suite
	ctx          context.Context
	rmqContainer *rabbitmq.RabbitMQContainer
	conn         *amqp.Connection
}

func (s *MessagingIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.rmqContainer, err = rabbitmq.Run(s.ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(2*time.Minute),
		),
	)
	s.Require().NoError(err, "Failed to start rabbitmq container")

	url, err := s.rmqContainer.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.conn, err = amqp.Dial(url)
	s.Require().NoError(err)
}

func (s *MessagingIntegrationSuite) TearDownSuite() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.rmqContainer != nil {
		s.Require().NoError(s.rmqContainer.Terminate(s.ctx))
	}
}

func TestMessagingIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Fatalf("Docker client init error: %v", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Fatalf("Docker daemon is not reachable: %v", err)
	}
	_ = cli.Close()

	suite.Run(t, new(MessagingIntegrationSuite))
}

func (s *MessagingIntegrationSuite) TestPushPublisherWritesDurableJSON() {
	publisher, err := NewPushPublisher(s.conn, testPushQueue, zap.NewNop())
	s.Require().NoError(err)
	defer publisher.Close()

	payload := models.PushNotificationPayload{
		UserID:       "u1",
		Notification: models.PushNotification{Title: "Achievement", Body: "First steps"},
		Data:         map[string]string{"type": constants.PushEventTypeAchievementEarned},
	}
	s.Require().NoError(publisher.PublishPushNotification(s.ctx, payload))

	ch, err := s.conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	var msg amqp.Delivery
	s.Require().Eventually(func() bool {
		var ok bool
		msg, ok, err = ch.Get(testPushQueue, true)
		return err == nil && ok
	}, 10*time.Second, 100*time.Millisecond)

	s.Equal("application/json", msg.ContentType)
	s.Equal(amqp.Persistent, msg.DeliveryMode)
	var got models.PushNotificationPayload
	s.Require().NoError(json.Unmarshal(msg.Body, &got))
	s.Equal(payload, got)
}

func (s *MessagingIntegrationSuite) TestClientUpdateConsumerSurvivesBadMessages() {
	delivered := make(chan string, 4)
	sender := new(mockSender)
	sender.On("SendToUsers", mock.Anything, []string{"u1"}, mock.Anything).
		Run(func(args mock.Arguments) {
			e := args.Get(2).(models.Event)
			delivered <- e.Data.(models.ClientUpdate).Action
		}).
		Return(service.Delivery{Delivered: []string{"c1"}})

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	consumer := NewClientUpdateConsumer(s.conn, sender, testClientUpdatesQueue, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- consumer.StartConsuming(ctx) }()

	ch, err := s.conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()
	_, err = ch.QueueDeclare(testClientUpdatesQueue, true, false, false, false, nil)
	s.Require().NoError(err)

	for _, body := range []string{
		`not json`,
		`{"action":"missing-user"}`,
		`{"user_id":"u1","action":"story-ready"}`,
	} {
		s.Require().NoError(ch.PublishWithContext(s.ctx, "", testClientUpdatesQueue, false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(body),
		}))
	}

	select {
	case action := <-delivered:
		s.Equal("story-ready", action)
	case <-time.After(10 * time.Second):
		s.FailNow("client update was not delivered")
	}

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("consumer did not stop")
	}
	sender.AssertNumberOfCalls(s.T(), "SendToUsers", 1)
}
