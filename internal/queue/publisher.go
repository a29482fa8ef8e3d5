// Package queue publishes completed device records to a RabbitMQ exchange
// so downstream consumers (inventory, CMDB sync) receive fingerprints as
// they finish.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scottpeterman/sshwontdie/internal/models"
)

// Publisher is a thread-safe RabbitMQ publisher bound to one exchange.
type Publisher struct {
	url        string
	exchange   string
	routingKey string
	logger     zerolog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	isClosed bool
}

// NewPublisher creates a publisher. Connect must be called before the first
// publish.
func NewPublisher(url, exchange, routingKey string) *Publisher {
	return &Publisher{
		url:        url,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     log.With().Str("component", "queue").Logger(),
	}
}

// Connect establishes a connection to RabbitMQ and declares the exchange.
// Calling Connect on an already connected publisher is a no-op.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed {
		return fmt.Errorf("publisher is closed")
	}
	if p.conn != nil {
		return nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch
	p.logger.Info().Str("exchange", p.exchange).Msg("Connected to RabbitMQ")
	return nil
}

// PublishRecord sends a device record to the exchange as JSON.
func (p *Publisher) PublishRecord(record *models.DeviceRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed {
		return fmt.Errorf("publisher is closed")
	}
	if p.channel == nil {
		return fmt.Errorf("not connected: call Connect() first")
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal device record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish device record: %w", err)
	}

	p.logger.Debug().
		Str("host", record.Host).
		Str("deviceType", record.DeviceType.String()).
		Msg("Published device record")
	return nil
}

// Close shuts the channel and connection. The publisher cannot be reused.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isClosed {
		return nil
	}
	p.isClosed = true

	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
		p.channel = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.conn = nil
	}
	return firstErr
}
