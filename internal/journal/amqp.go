package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"nexus/internal/turn"
)

type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes each event to a topic exchange with routing key
// "turn.<kind>". The connection is opened lazily and reopened after loss.
type AMQPSink struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	pub     channelPublisher
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if exchange == "" {
		return nil, errors.New("amqp exchange is required")
	}
	return &AMQPSink{url: url, exchange: exchange}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

// Ping opens the connection and declares the exchange.
func (s *AMQPSink) Ping(ctx context.Context) error {
	_ = ctx
	_, err := s.publisher()
	return err
}

func (s *AMQPSink) publisher() (channelPublisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil && s.pub != nil {
		return s.pub, nil
	}
	if s.conn != nil && !s.conn.IsClosed() && s.channel != nil && !s.channel.IsClosed() {
		return s.pub, nil
	}

	conn, err := amqp.DialConfig(s.url, amqp.Config{Properties: amqp.Table{
		"connection_name": "nexus-journal",
	}})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}

	s.conn = conn
	s.channel = ch
	s.pub = ch
	return ch, nil
}

func routingKey(kind turn.EventKind) string {
	return "turn." + string(kind)
}

func (s *AMQPSink) Write(ctx context.Context, ev turn.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	pub, err := s.publisher()
	if err != nil {
		return err
	}
	return pub.PublishWithContext(ctx, s.exchange, routingKey(ev.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{"session": ev.Session},
	})
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.channel != nil {
		errs = append(errs, s.channel.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	s.channel, s.conn, s.pub = nil, nil, nil
	return errors.Join(errs...)
}
