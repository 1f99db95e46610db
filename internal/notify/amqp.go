package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"github.com/rowjay/tzwindow/internal/config"
)

// publisher is the subset of *amqp091.Channel used here.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQP publishes events as persistent JSON messages. The connection is
// opened on first use and reopened after a failed publish.
type AMQP struct {
	Name       string
	URL        string
	Exchange   string
	RoutingKey string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel publisher
}

func NewAMQP(cfg config.AMQPConfig) *AMQP {
	return &AMQP{Name: cfg.Name, URL: cfg.URL, Exchange: cfg.Exchange, RoutingKey: cfg.RoutingKey}
}

func (a *AMQP) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel == nil {
		if err := a.connect(); err != nil {
			return fmt.Errorf("amqp %s: %w", a.Name, err)
		}
	}

	message := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.At,
		Headers: amqp091.Table{
			"window": event.Window,
			"state":  event.State,
		},
	}
	if err := a.channel.PublishWithContext(ctx, a.Exchange, a.RoutingKey, false, false, message); err != nil {
		a.reset()
		return fmt.Errorf("amqp %s: failed to publish message: %w", a.Name, err)
	}
	return nil
}

func (a *AMQP) connect() error {
	conn, err := amqp091.Dial(a.URL)
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	a.conn = conn
	a.channel = channel
	return nil
}

func (a *AMQP) reset() {
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
	a.channel = nil
	a.conn = nil
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}
