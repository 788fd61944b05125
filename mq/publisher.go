package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher emits domain events onto a durable topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	log.Printf("✅ Publishing events to exchange %s", exchange)
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishJSON sends v as a persistent JSON message under the routing key.
func (p *Publisher) PublishJSON(ctx context.Context, key string, v interface{}) error {
	msg, err := newPublishing(v, time.Now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func newPublishing(v interface{}, at time.Time) (amqp.Publishing, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    at.UTC(),
		Body:         b,
	}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
