package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn       *Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher creates a publisher for reading events on a topic exchange
func NewPublisher(conn *Connection, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, err
	}

	return &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// SubmittedEvent is published after the backend accepted a new reading
type SubmittedEvent struct {
	RequestID     string `json:"requestId"`
	ReadingID     string `json:"readingId"`
	MeterID       string `json:"meterId"`
	CustomerCode  string `json:"customerCode"`
	ReadingDate   string `json:"readingDate"`
	CurrentIndex  string `json:"currentIndex"`
	PreviousIndex string `json:"previousIndex"`
	Consumption   string `json:"consumption"`
	AccessReason  string `json:"accessReason"`
	Status        string `json:"status"`
	SubmittedAt   string `json:"submittedAt"`
}

// PublishSubmittedEvent publishes a reading submitted event
func (p *Publisher) PublishSubmittedEvent(ctx context.Context, event SubmittedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			CorrelationId: event.RequestID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published reading submitted event",
		zap.String("routing_key", p.routingKey),
		zap.String("reading_id", event.ReadingID),
		zap.String("meter_id", event.MeterID),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}
