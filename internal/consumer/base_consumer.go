package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// Publisher sends a message on the consumer's channel. *amqp.Channel
// satisfies it.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Handler processes one delivery and is responsible for acking it. pub
// publishes on the channel the delivery arrived on.
type Handler func(ctx context.Context, pub Publisher, msg amqp.Delivery) error

// Options describe the queue topology a consumer declares and reads from.
type Options struct {
	Exchange        string
	RoutingKey      string
	Queue           string
	DeadLetterQueue string
	Prefetch        int
	Workers         int
	Tag             string
}

func (o Options) withDefaults() Options {
	if o.Exchange == "" {
		o.Exchange = "notifications.direct"
	}
	if o.RoutingKey == "" {
		o.RoutingKey = "push"
	}
	if o.Prefetch <= 0 {
		o.Prefetch = 50
	}
	if o.Workers <= 0 {
		o.Workers = 5
	}
	return o
}

var errChannelClosed = errors.New("amqp channel closed")

// BaseConsumer owns the broker channel, declares the topology and fans
// deliveries out to a fixed pool of workers.
type BaseConsumer struct {
	conn   *amqp.Connection
	opts   Options
	logger *slog.Logger
}

func NewBaseConsumer(conn *amqp.Connection, opts Options, logger *slog.Logger) *BaseConsumer {
	return &BaseConsumer{
		conn:   conn,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Start consumes until ctx is cancelled or the broker closes the channel.
func (c *BaseConsumer) Start(ctx context.Context, handler Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.declare(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}
	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.opts.Queue,
		c.opts.Tag,
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("consuming push requests",
		slog.String("queue", c.opts.Queue),
		slog.Int("workers", c.opts.Workers),
		slog.Int("prefetch", c.opts.Prefetch),
	)

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.work(ctx, id, ch, deliveries, handler)
		}(i)
	}

	var result error
	select {
	case <-ctx.Done():
	case amqpErr, ok := <-closed:
		result = errChannelClosed
		if ok && amqpErr != nil {
			result = fmt.Errorf("%w: %s", errChannelClosed, amqpErr.Reason)
		}
	}
	wg.Wait()
	return result
}

func (c *BaseConsumer) work(ctx context.Context, id int, pub Publisher, deliveries <-chan amqp.Delivery, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.safeHandle(ctx, handler, pub, msg); err != nil {
				c.logger.Error("handler returned error", slog.Int("worker", id), slog.Any("error", err))
			}
		}
	}
}

// safeHandle dead-letters a delivery whose handler panicked instead of
// losing the worker.
func (c *BaseConsumer) safeHandle(ctx context.Context, handler Handler, pub Publisher, msg amqp.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = msg.Nack(false, false)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, pub, msg)
}

// declare creates the exchange, the work queue bound to it and, when
// configured, the dead-letter queue rejected requests are routed to.
func (c *BaseConsumer) declare(ch *amqp.Channel) error {
	o := c.opts
	if err := ch.ExchangeDeclare(o.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", o.Exchange, err)
	}

	args := amqp.Table{}
	if o.DeadLetterQueue != "" {
		if _, err := ch.QueueDeclare(o.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter queue %s: %w", o.DeadLetterQueue, err)
		}
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = o.DeadLetterQueue
	}

	if _, err := ch.QueueDeclare(o.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", o.Queue, err)
	}
	if err := ch.QueueBind(o.Queue, o.RoutingKey, o.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", o.Queue, err)
	}
	return nil
}
