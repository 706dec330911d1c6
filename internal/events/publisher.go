package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends a JSON message to the events exchange under routingKey.
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
	Close()
}

const dialTimeout = 10 * time.Second

// AMQPPublisher publishes to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	url      string
	dial     func(url string) (*amqp.Connection, error)
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(rawURL, exchange string) (*AMQPPublisher, error) {
	clean, err := sanitizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("NewAMQPPublisher: %w", err)
	}

	p := &AMQPPublisher{url: clean, dial: dialAMQP, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("NewAMQPPublisher: %w", err)
	}
	return p, nil
}

func dialAMQP(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
}

// connect opens a fresh channel, redialing first when the connection is gone.
// Callers hold p.mu or own p exclusively.
func (p *AMQPPublisher) connect() error {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}

	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial(p.url)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	if err := declare(ch, p.exchange); err != nil {
		ch.Close()
		return err
	}
	p.channel = ch
	return nil
}

// Publish reconnects once if there is no usable channel or the first attempt
// fails.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	var firstErr error
	if p.channel != nil && !p.channel.IsClosed() {
		firstErr = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
		if firstErr == nil {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("Publish %s: %w", routingKey, errors.Join(firstErr, err))
	}

	if err := p.connect(); err != nil {
		return fmt.Errorf("Publish %s: reconnect: %w", routingKey, errors.Join(firstErr, err))
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("Publish %s: retry: %w", routingKey, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

func declare(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return nil
}

// LogPublisher stands in when no broker is configured or reachable. Events
// are logged and reported as delivered.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	p.logger.Info("event not sent to broker",
		"routing_key", routingKey,
		"message_id", messageID,
		"body", string(body),
	)
	return nil
}

func (p *LogPublisher) Close() {}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), `"'`)
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP URL scheme must be amqp:// or amqps://")
	}
	return clean, nil
}

// Healthy reports an error while the broker connection is closed. The next
// publish redials.
func (p *AMQPPublisher) Healthy(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}
