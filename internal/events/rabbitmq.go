package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"video_reposter/internal/domain"
)

const (
	TypeItemAbandoned = "item_abandoned"
	TypeInconsistency = "inconsistency"
	TypePassCompleted = "pass_completed"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
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

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil)
	if err != nil {
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

// Message is the envelope of every event sent to the exchange. Exactly one
// of Event and Summary is set.
type Message struct {
	Type      string              `json:"type"`
	PassID    string              `json:"pass_id"`
	Event     *domain.ItemEvent   `json:"event,omitempty"`
	Summary   *domain.PassSummary `json:"summary,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func (r *RabbitMQ) ItemAbandoned(ctx context.Context, event domain.ItemEvent) error {
	msgType := TypeItemAbandoned
	if event.Inconsistent {
		msgType = TypeInconsistency
	}
	return r.publish(ctx, Message{
		Type:      msgType,
		PassID:    event.PassID,
		Event:     &event,
		Timestamp: time.Now().UTC(),
	})
}

func (r *RabbitMQ) PassCompleted(ctx context.Context, summary *domain.PassSummary) error {
	return r.publish(ctx, Message{
		Type:      TypePassCompleted,
		PassID:    summary.PassID,
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	})
}

func (r *RabbitMQ) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         msg.Type,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published event", "type", msg.Type, "pass_id", msg.PassID)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
