package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/fieldsales-recruit/internal/metrics"
	"github.com/unclebandit/fieldsales-recruit/internal/notify"
)

// TopicNotifications carries notify.Message payloads.
const TopicNotifications = "notifications"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue runs each published job on its own goroutine and retries
// failed handlers with linear backoff.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	inflight sync.WaitGroup

	MaxRetries int
	Backoff    time.Duration
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return errors.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: q.MaxRetries}
		q.inflight.Add(1)
		go q.processJob(handler, job)
	}
	return nil
}

func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.inflight.Done()
	for {
		err := handler(job.Payload)
		if err == nil {
			return
		}
		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			log.Error().Err(err).Str("topic", job.Topic).Int("attempts", job.RetryCount).
				Msg("job permanently failed")
			return
		}
		log.Warn().Err(err).Str("topic", job.Topic).Int("attempt", job.RetryCount).
			Msg("job failed, retrying")
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished or given up.
func (q *InMemoryQueue) Wait() {
	q.inflight.Wait()
}

// Dispatcher publishes notifications onto a queue so Send returns without
// waiting on the gateway.
type Dispatcher struct {
	Queue Queue
}

func (d *Dispatcher) Send(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.Queue.Publish(TopicNotifications, msg)
}

// StartNotificationSubscriber delivers queued notifications through
// deliverer, each attempt bounded by timeout.
func StartNotificationSubscriber(q Queue, deliverer notify.Dispatcher, timeout time.Duration) error {
	return q.Subscribe(TopicNotifications, func(payload any) error {
		msg, ok := payload.(notify.Message)
		if !ok {
			log.Error().Msgf("unexpected notification payload %T", payload)
			return nil // not retryable
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := deliverer.Send(ctx, msg); err != nil {
			metrics.DispatchFailures.WithLabelValues(msg.TemplateKey).Inc()
			return err
		}
		return nil
	})
}
