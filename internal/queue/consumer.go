package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// HandlerFunc processes one delivery body.  A returned error rejects the
// message without requeueing it.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer drains durable queues, one reconnecting loop per queue.
type Consumer struct {
	url      string
	handlers map[string]HandlerFunc
	logger   logrus.FieldLogger
}

// NewConsumer returns a consumer for the broker at url.  Register handlers
// with Handle before calling Run.
func NewConsumer(url string, logger logrus.FieldLogger) *Consumer {
	return &Consumer{url: url, handlers: map[string]HandlerFunc{}, logger: logger.WithField("component", "consumer")}
}

// Handle registers h for queue.
func (c *Consumer) Handle(queue string, h HandlerFunc) { c.handlers[queue] = h }

// Run consumes every registered queue until ctx is cancelled.  Broker
// failures never end Run; each loop redials with exponential backoff capped
// at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("consumer: no handlers registered")
	}
	var wg sync.WaitGroup
	for name, h := range c.handlers {
		wg.Add(1)
		go func(name string, h HandlerFunc) {
			defer wg.Done()
			c.loop(ctx, name, h)
		}(name, h)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) loop(ctx context.Context, queue string, h HandlerFunc) {
	log := c.logger.WithField("queue", queue)
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn, queue, h, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, queue string, h HandlerFunc, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("set QoS failed")
	}
	if err := declare(ch, queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "queue consume")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := h(ctx, d.Body); err != nil {
				log.WithError(err).Error("handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// PurchaseLog appends one line per confirmed purchase to a file under dir.
type PurchaseLog struct {
	dir string
	mu  sync.Mutex
}

// NewPurchaseLog writes to dir/purchases.log.
func NewPurchaseLog(dir string) *PurchaseLog { return &PurchaseLog{dir: dir} }

// Handle is a HandlerFunc for the purchase.confirmed queue.
func (l *PurchaseLog) Handle(_ context.Context, body []byte) error {
	var ev PurchaseConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return errors.Wrap(err, "unmarshal")
	}
	if ev.PurchaseID == "" {
		return errors.New("purchase event without purchase_id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Ensure logs directory exists
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir logs")
	}
	f, err := os.OpenFile(filepath.Join(l.dir, "purchases.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Purchase confirmed | purchase_id=%s | user_id=%s | name=%q | quantity=%d | total=%d cents | numbers=%d..%d | session=%s\n",
		ev.ConfirmedAt, ev.PurchaseID, ev.UserID, ev.UserName, ev.Quantity, ev.TotalAmountCents, ev.FirstNumber, ev.LastNumber, ev.SessionID)
	if _, err := f.WriteString(line); err != nil {
		return errors.Wrap(err, "write log")
	}
	return nil
}
