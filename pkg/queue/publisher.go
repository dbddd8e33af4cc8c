package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL      string
	Exchange string
}

// Publisher sends persistent JSON messages to a durable topic exchange.
type Publisher struct {
	conn     *amqp091.Connection
	exchange string

	mutex   sync.Mutex
	channel *amqp091.Channel
}

func NewPublisher(cfg Config) (*Publisher, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	return &Publisher{
		conn:     conn,
		exchange: cfg.Exchange,
		channel:  ch,
	}, nil
}

// BindQueue declares a durable queue bound to the exchange with pattern.
func (p *Publisher) BindQueue(name, pattern string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if _, err := p.channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	if err := p.channel.QueueBind(name, pattern, p.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", name, err)
	}
	return nil
}

func (p *Publisher) PublishJSON(ctx context.Context, routingKey string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err := p.channel.Close(); err != nil && err != amqp091.ErrClosed {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
