package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// ErrNotConnected is returned when the broker connection is down.
var ErrNotConnected = errors.New("integration: broker not connected")

// Broker publishes messages to a durable topic exchange.
type Broker struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closing bool
}

// DialBroker connects and declares the exchange.
func DialBroker(url, exchange string, logger *slog.Logger) (*Broker, error) {
	if url == "" || exchange == "" {
		return nil, errors.New("integration: broker url and exchange required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{url: url, exchange: exchange, logger: logger.With(slog.String("component", "broker"))}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.connectLocked(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connectLocked() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("integration: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("integration: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("integration: declare exchange %s: %w", b.exchange, err)
	}
	b.conn = conn
	b.channel = ch
	b.logger.Info("broker connected", slog.String("exchange", b.exchange))
	return nil
}

// Publish sends msg as a persistent JSON message. A dropped connection is
// re-dialled once before giving up.
func (b *Broker) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return ErrNotConnected
	}
	if b.conn == nil || b.conn.IsClosed() {
		b.logger.Warn("broker connection lost, reconnecting")
		if err := b.connectLocked(); err != nil {
			return errors.Join(ErrNotConnected, err)
		}
	}
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	err := b.channel.Publish(b.exchange, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg.Body,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Headers:      headers,
	})
	if err != nil {
		return fmt.Errorf("integration: publish %s: %w", msg.RoutingKey, err)
	}
	return nil
}

// Close shuts the channel and connection.
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return nil
	}
	b.closing = true
	var errs []error
	if b.channel != nil {
		errs = append(errs, b.channel.Close())
	}
	if b.conn != nil && !b.conn.IsClosed() {
		errs = append(errs, b.conn.Close())
	}
	return errors.Join(errs...)
}
