package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNack is returned when the broker refuses a published message
var ErrNack = errors.New("publish NACK from broker")

// DefaultPublishTimeout bounds how long a publish waits for its confirm
const DefaultPublishTimeout = 5 * time.Second

// confirmation is the broker's answer to one published message
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// channel is what the publisher needs from a confirm-mode AMQP channel
type channel interface {
	PublishDeferred(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

// confirmChannel adapts *amqp.Channel to channel
type confirmChannel struct {
	*amqp.Channel
}

func (c confirmChannel) PublishDeferred(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("channel is not in confirm mode")
	}
	return dc, nil
}

// AMQPPublisher publishes split events to a topic exchange and waits for
// each message's own publisher confirm.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
}

var _ Publisher = (*AMQPPublisher)(nil)

// DialAMQP connects, declares the exchange and enables confirm mode
func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	p := newAMQPPublisher(confirmChannel{ch}, exchange, logger)
	p.conn = conn
	p.logger.Info("connected to broker", "exchange", exchange)
	return p, nil
}

func newAMQPPublisher(ch channel, exchange string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		timeout:  DefaultPublishTimeout,
		logger:   logger.With("component", "events"),
	}
}

// PublishSplitCommitted publishes the event and waits for the broker's ack
func (p *AMQPPublisher) PublishSplitCommitted(ctx context.Context, ev SplitCommittedEvent) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	key := RoutingKey(ev.TableID)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conf, err := p.ch.PublishDeferred(ctx, p.exchange, key, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         EventSplitCommitted,
		MessageId:    ev.OriginalOrderID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for confirm: %w", err)
	}
	if !acked {
		return ErrNack
	}
	p.logger.Debug("split event published", "routing_key", key, "order_id", ev.OriginalOrderID)
	return nil
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
