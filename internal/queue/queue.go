package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/venue-broadcast/internal/logging"
)

// Handler processes one message body. Returning nil acknowledges the message;
// an error asks for redelivery until the retry budget is spent.
type Handler func(ctx context.Context, body []byte) error

type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	// Subscribe registers handler for topic. Messages are processed in the
	// background until ctx is done.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

const (
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
)

// InMemoryQueue delivers every message to all subscribers of its topic in
// process, retrying failed handlers with linear backoff.
type InMemoryQueue struct {
	MaxRetries int
	Backoff    time.Duration
	Log        *logrus.Entry

	mu       sync.Mutex
	handlers map[string][]subscription
	wg       sync.WaitGroup
}

type subscription struct {
	ctx     context.Context
	handler Handler
}

func NewInMemoryQueue(log *logrus.Entry) *InMemoryQueue {
	if log == nil {
		log = logging.Nop()
	}
	return &InMemoryQueue{
		MaxRetries: defaultMaxRetries,
		Backoff:    defaultBackoff,
		Log:        log,
		handlers:   make(map[string][]subscription),
	}
}

// Publish hands body to every subscriber of topic.
func (q *InMemoryQueue) Publish(_ context.Context, topic string, body []byte) error {
	q.mu.Lock()
	subs := q.handlers[topic]
	q.mu.Unlock()

	if len(subs) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, sub := range subs {
		if sub.ctx.Err() != nil {
			continue
		}
		payload := append([]byte(nil), body...)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.process(sub, topic, payload)
		}()
	}
	return nil
}

func (q *InMemoryQueue) process(sub subscription, topic string, body []byte) {
	log := q.Log.WithField("topic", topic)
	for attempt := 0; ; attempt++ {
		err := sub.handler(sub.ctx, body)
		if err == nil {
			return
		}
		if attempt >= q.MaxRetries {
			log.WithError(err).WithField("attempts", attempt+1).Error("message dropped after retries")
			return
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("handler failed, retrying")

		select {
		case <-sub.ctx.Done():
			return
		case <-time.After(time.Duration(attempt+1) * q.Backoff):
		}
	}
}

func (q *InMemoryQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], subscription{ctx: ctx, handler: handler})
	return nil
}

// Wait blocks until every published message has been handled or dropped.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

func (q *InMemoryQueue) Close() error {
	q.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
