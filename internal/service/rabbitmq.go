package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/config"
	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

const confirmTimeout = 5 * time.Second

// ErrPublisherClosed is returned when publishing on a closed publisher.
var ErrPublisherClosed = errors.New("publisher is closed")

// MessagePublisher publishes block events to a RabbitMQ topic exchange with
// publisher confirms.
type MessagePublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	config   *config.RabbitMQConfig
	mu       sync.Mutex
}

// NewMessagePublisher connects to RabbitMQ and declares the exchange and queue.
func NewMessagePublisher(cfg *config.RabbitMQConfig) (*MessagePublisher, error) {
	mp := &MessagePublisher{
		config: cfg,
	}

	if err := mp.connect(); err != nil {
		return nil, err
	}

	return mp, nil
}

func (mp *MessagePublisher) connect() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	connURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		mp.config.User, mp.config.Password, mp.config.Host, mp.config.Port)

	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(step string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to %s: %w", step, err)
	}

	if err := ch.Confirm(false); err != nil {
		return fail("enable publisher confirms", err)
	}

	if err := ch.ExchangeDeclare(mp.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}

	if mp.config.Queue != "" {
		if _, err := ch.QueueDeclare(mp.config.Queue, true, false, false, false, amqp.Table{
			"x-message-ttl": int32(7 * 24 * time.Hour / time.Millisecond),
		}); err != nil {
			return fail("declare queue", err)
		}
		if err := ch.QueueBind(mp.config.Queue, mp.config.RoutingKey, mp.config.Exchange, false, nil); err != nil {
			return fail("bind queue", err)
		}
	}

	mp.conn = conn
	mp.channel = ch
	mp.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	logger.Log.Info("Connected to RabbitMQ",
		zap.String("exchange", mp.config.Exchange),
		zap.String("queue", mp.config.Queue),
	)

	return nil
}

// PublishBlockExpired publishes event and waits for the broker to confirm it.
func (mp *MessagePublisher) PublishBlockExpired(ctx context.Context, event *models.BlockExpiredEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// one publish at a time so each confirmation matches its message
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.channel == nil {
		return ErrPublisherClosed
	}

	err = mp.channel.PublishWithContext(
		ctx,
		mp.config.Exchange,
		mp.config.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.RemovedAt,
			MessageId:    event.BlockID,
			Type:         mp.config.RoutingKey,
		},
	)
	if err != nil {
		eventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirm, ok := <-mp.confirms:
		if !ok {
			eventsPublished.WithLabelValues("error").Inc()
			return ErrPublisherClosed
		}
		if !confirm.Ack {
			eventsPublished.WithLabelValues("nack").Inc()
			return fmt.Errorf("message was not acknowledged by broker")
		}
	case <-time.After(confirmTimeout):
		eventsPublished.WithLabelValues("timeout").Inc()
		return fmt.Errorf("timeout waiting for publish confirmation")
	case <-ctx.Done():
		return ctx.Err()
	}

	eventsPublished.WithLabelValues("ok").Inc()
	logger.Log.Debug("Published block expired event",
		zap.String("blockId", event.BlockID),
		zap.String("routingKey", mp.config.RoutingKey),
	)

	return nil
}

// Close closes the channel and the connection.
func (mp *MessagePublisher) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var errs []error
	if mp.channel != nil {
		if err := mp.channel.Close(); err != nil {
			errs = append(errs, err)
		}
		mp.channel = nil
	}
	if mp.conn != nil {
		if err := mp.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		mp.conn = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %w", errors.Join(errs...))
	}

	logger.Log.Info("RabbitMQ publisher closed")
	return nil
}

// IsHealthy reports whether the connection is open.
func (mp *MessagePublisher) IsHealthy() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.conn != nil && !mp.conn.IsClosed() && mp.channel != nil
}
