// Package amqp publishes task completion messages to an AMQP topic exchange.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/genflow/internal/notify"
	"github.com/streadway/amqp"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements notify.Publisher. Messages are routed with the key
// task.<taskType>.<status> so consumers can bind to a subset.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       Channel
	exchange string
	logger   *slog.Logger
}

var _ notify.Publisher = (*Publisher)(nil)

// Dial connects to url and declares exchange as a durable topic exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if exchange == "" {
		return nil, errors.New("amqp exchange is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	p := NewWithChannel(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

// NewWithChannel wraps an open channel whose exchange is already declared.
func NewWithChannel(ch Channel, exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger.With(slog.String("component", "amqp_publisher")),
	}
}

// RoutingKey builds the routing key for a message from its attributes.
func RoutingKey(attrs map[string]string) string {
	taskType, status := attrs["taskType"], attrs["status"]
	if taskType == "" {
		taskType = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	return "task." + taskType + "." + status
}

// Publish implements notify.Publisher. Attributes become message headers.
func (p *Publisher) Publish(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	headers := amqp.Table{}
	for k, v := range msg.Attributes {
		headers[k] = v
	}

	key := RoutingKey(msg.Attributes)

	p.mu.Lock()
	err := p.ch.Publish(p.exchange, key, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         msg.Body,
	})
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish to %s with key %s: %w", p.exchange, key, err)
	}

	p.logger.Debug("published completion message",
		slog.String("exchange", p.exchange),
		slog.String("routing_key", key))
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
