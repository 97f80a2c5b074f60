package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const commandExchange = "scooter_commands" // topic

type commandMessage struct {
	Serial  string  `json:"serial"`
	Command Command `json:"command"`
}

type ackMessage struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// AMQPChannel carries commands to scooter hardware over RabbitMQ. Each
// command is published to the scooter_commands topic exchange keyed by the
// scooter's serial number; the device acknowledges on an exclusive reply
// queue, matched back by correlation ID.
type AMQPChannel struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	replyQueue string
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]chan ackMessage
}

func DialAMQP(ctx context.Context, url string, logger *slog.Logger) (*AMQPChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(commandExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("consume replies: %w", err)
	}

	c := &AMQPChannel{
		conn:       conn,
		ch:         ch,
		replyQueue: q.Name,
		logger:     logger,
		pending:    make(map[string]chan ackMessage),
	}
	go c.dispatch(ctx, deliveries)
	return c, nil
}

func (c *AMQPChannel) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var ack ackMessage
			if err := json.Unmarshal(d.Body, &ack); err != nil {
				c.logger.Warn("unparseable device ack", "error", err, "correlationId", d.CorrelationId)
				continue
			}
			c.mu.Lock()
			waiter, found := c.pending[d.CorrelationId]
			c.mu.Unlock()
			if !found {
				// Late ack after the attempt timed out. The gateway already
				// treated the attempt as a failure, so drop it.
				c.logger.Warn("ack for unknown command", "correlationId", d.CorrelationId)
				continue
			}
			waiter <- ack
		}
	}
}

func (c *AMQPChannel) Issue(ctx context.Context, serial string, cmd Command) error {
	corr := uuid.NewString()
	waiter := make(chan ackMessage, 1)

	c.mu.Lock()
	c.pending[corr] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, corr)
		c.mu.Unlock()
	}()

	body, err := json.Marshal(commandMessage{Serial: serial, Command: cmd})
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	err = c.ch.PublishWithContext(ctx, commandExchange, "scooter.command."+serial, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: corr,
		ReplyTo:       c.replyQueue,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish command: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrAckTimeout, ctx.Err())
	case ack := <-waiter:
		if !ack.Success {
			return fmt.Errorf("%w: %s", ErrCommandRejected, ack.Detail)
		}
		return nil
	}
}

func (c *AMQPChannel) Close() error {
	if c.ch != nil && !c.ch.IsClosed() {
		if err := c.ch.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}
