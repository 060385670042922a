//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestDeliverPublishesItem() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "feedrelay-test",
		RoutingKey: "items",
		QueueName:  "feedrelay-items-test",
	}

	pub, err := NewRabbitMQ(s.ctx, cfg, logger.NewNopLogger())
	s.Require().NoError(err)
	defer pub.Close()

	item := models.CollectedItem{ID: "abc123", Content: "<div>hello</div>", SourceURL: "https://example.com/in/me/recent-activity/all/"}
	result, err := pub.Deliver(s.ctx, "tok", "u1", item)
	s.Require().NoError(err)
	s.Equal("published", result)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("abc123", msg.MessageId)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received ItemMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal("u1", received.UserID)
	s.Equal("<div>hello</div>", received.Item.Content)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
