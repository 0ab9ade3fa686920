package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/unclebandit/venue-broadcast/internal/logging"
)

const (
	retryHeader     = "x-retry-count"
	contentTypeJSON = "application/json"
	prefetchCount   = 10
)

// AMQPQueue is a Queue over durable RabbitMQ queues. Each topic is a queue
// bound to the default exchange.
type AMQPQueue struct {
	MaxRetries int
	RetryDelay time.Duration
	Log        *logrus.Entry

	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
	wg   sync.WaitGroup
}

func DialAMQP(url string, log *logrus.Entry) (*AMQPQueue, error) {
	if log == nil {
		log = logging.Nop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	return &AMQPQueue{
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultBackoff,
		Log:        log,
		conn:       conn,
		ch:         ch,
	}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) publish(topic string, msg amqp.Publishing) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.Publish("", topic, false, false, msg)
}

func (q *AMQPQueue) Publish(_ context.Context, topic string, body []byte) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	err := q.publish(topic, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	q.mu.Lock()
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					q.Log.WithField("topic", topic).Warn("delivery channel closed")
					return
				}
				q.handle(ctx, topic, d, handler, func(msg amqp.Publishing) error {
					return q.publish(topic, msg)
				})
			}
		}
	}()
	return nil
}

// handle runs handler for one delivery. A failed message is republished with
// an incremented retry header and acknowledged, so a poison message cannot
// block the queue; once the budget is spent it is dropped.
func (q *AMQPQueue) handle(ctx context.Context, topic string, d amqp.Delivery, handler Handler, republish func(amqp.Publishing) error) {
	retries := retryCount(d.Headers)
	log := q.Log.WithFields(logrus.Fields{"topic": topic, "retries": retries})

	err := handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.WithError(ackErr).Error("ack failed")
		}
		return
	}

	if retries >= q.MaxRetries {
		log.WithError(err).Error("message dropped after retries")
		if ackErr := d.Ack(false); ackErr != nil {
			log.WithError(ackErr).Error("ack failed")
		}
		return
	}

	log.WithError(err).Warn("handler failed, requeueing")
	if q.RetryDelay > 0 {
		select {
		case <-ctx.Done():
			// leave it to the broker
			_ = d.Nack(false, true)
			return
		case <-time.After(time.Duration(retries+1) * q.RetryDelay):
		}
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(retries + 1)
	pubErr := republish(amqp.Publishing{
		Headers:      headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    d.Timestamp,
		Body:         d.Body,
	})
	if pubErr != nil {
		log.WithError(pubErr).Error("republish failed, returning message to broker")
		_ = d.Nack(false, true)
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.WithError(ackErr).Error("ack failed")
	}
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	chErr := q.ch.Close()
	q.mu.Unlock()
	connErr := q.conn.Close()
	q.wg.Wait()
	if chErr != nil {
		return chErr
	}
	return connErr
}

var _ Queue = (*AMQPQueue)(nil)
