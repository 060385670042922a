// Package publisher delivers collected items to a RabbitMQ exchange instead
// of the HTTP queue endpoint.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	errs "feedrelay/pkg/errors"
	"feedrelay/pkg/logger"
	"feedrelay/pkg/models"
	"feedrelay/pkg/retry"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config selects the broker topology
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// RabbitMQ publishes one message per item
type RabbitMQ struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     logger.Logger
}

// ItemMessage is the published body
type ItemMessage struct {
	UserID    string               `json:"userId"`
	Item      models.CollectedItem `json:"item"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewRabbitMQ dials the broker, retrying transient failures, and declares
// a durable direct exchange bound to a durable queue
func NewRabbitMQ(ctx context.Context, cfg Config, log logger.Logger) (*RabbitMQ, error) {
	log = logger.OrDefault(log).WithField("component", "publisher")

	conn, err := retry.DoWithResult(ctx, func(context.Context) (*amqp.Connection, error) {
		c, err := amqp.Dial(cfg.URL)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "connect to rabbitmq")
		}
		return c, nil
	}, &retry.Config{MaxAttempts: 3, Backoff: retry.DefaultExponentialBackoff(), RetryIf: retry.DefaultRetryIf, Logger: log})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.InfoWithFields("Connected to rabbitmq", map[string]interface{}{
		"exchange":    cfg.Exchange,
		"queue":       cfg.QueueName,
		"routing_key": cfg.RoutingKey,
	})

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     log,
	}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// buildPublishing encodes one item. The bearer token travels as a header so
// the consumer can authenticate the user.
func buildPublishing(token, userID string, item models.CollectedItem, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ItemMessage{UserID: userID, Item: item, Timestamp: now.UTC()})
	if err != nil {
		return amqp.Publishing{}, errs.Wrap(errs.ErrorTypeParsing, err, "marshal item message")
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    item.ID,
		Headers:      amqp.Table{"authorization": "Bearer " + token},
		Body:         body,
		Timestamp:    now,
	}, nil
}

// Deliver publishes item once; broker errors count as a failed delivery
func (r *RabbitMQ) Deliver(ctx context.Context, token, userID string, item models.CollectedItem) (string, error) {
	msg, err := buildPublishing(token, userID, item, time.Now())
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	err = r.channel.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, msg)
	r.mu.Unlock()
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeTransport, err, "publish message")
	}

	r.logger.DebugWithFields("Published item", map[string]interface{}{
		"item_id": item.ID,
	})
	return "published", nil
}

// Close releases the channel and connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
