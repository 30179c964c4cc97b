package notify

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

// RetryHeader counts how many times a notification has been republished.
const RetryHeader = "x-retry-count"

// Publisher is the part of *amqp.Channel used for publishing.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPDispatcher queues notifications on a durable RabbitMQ queue for the
// worker binary.
type AMQPDispatcher struct {
	Channel Publisher
	Queue   string
}

// DeclareQueue declares the durable notification queue.
func DeclareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	return errors.Wrapf(err, "declare queue %s", name)
}

func (d *AMQPDispatcher) Send(ctx context.Context, msg Message) error {
	return d.Publish(ctx, msg, 0)
}

// Publish queues msg tagged with the given retry attempt.
func (d *AMQPDispatcher) Publish(ctx context.Context, msg Message, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	err = d.Channel.Publish("", d.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{RetryHeader: int32(attempt)},
		Body:         body,
	})
	return errors.Wrap(err, "publish notification")
}

// Decode parses a queued notification.
func Decode(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, errors.Wrap(err, "decode notification")
	}
	if msg.TemplateKey == "" {
		return Message{}, errors.New("decode notification: missing template key")
	}
	return msg, nil
}

// Attempt reads the retry header. Missing or malformed headers count as 0.
func Attempt(headers amqp.Table) int {
	switch v := headers[RetryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
