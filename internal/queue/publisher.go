package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher sends domain events to RabbitMQ.  A connection is dialled per
// publish; events are rare compared to request traffic and this keeps the
// publisher free of reconnect state.  Failures are returned, not logged.
type Publisher struct {
	url    string
	logger logrus.FieldLogger
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, logger logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, logger: logger.WithField("component", "publisher")}
}

// PublishPurchaseConfirmed publishes ev to the purchase.confirmed queue.
func (p *Publisher) PublishPurchaseConfirmed(ctx context.Context, ev PurchaseConfirmedEvent) error {
	return p.publish(ctx, PurchaseConfirmedQueue, ev)
}

// PublishPixelEvent publishes ev to the analytics.pixel queue.
func (p *Publisher) PublishPixelEvent(ctx context.Context, ev PixelEvent) error {
	return p.publish(ctx, PixelEventQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return errors.Wrap(err, "dial broker")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	// Declaring is idempotent.  Durable so messages survive broker restarts.
	if err := declare(ch, queue); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		return errors.Wrapf(err, "publish to %s", queue)
	}
	p.logger.WithField("queue", queue).Debug("event published")
	return nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	return errors.Wrapf(err, "declare queue %s", queue)
}
