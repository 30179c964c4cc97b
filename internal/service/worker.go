package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/fieldsales-recruit/internal/metrics"
	"github.com/unclebandit/fieldsales-recruit/internal/notify"
)

// Job is one queued notification. Ack settles it; Retry puts it back with
// the attempt counter raised.
type Job struct {
	Message notify.Message
	Attempt int
	Ack     func() error
	Retry   func() error
}

// Worker delivers queued notifications.
type Worker struct {
	Deliverer  notify.Dispatcher
	JobChan    <-chan Job
	MaxRetries int
	Timeout    time.Duration
}

func NewWorker(deliverer notify.Dispatcher, jobChan <-chan Job, maxRetries int) *Worker {
	return &Worker{
		Deliverer:  deliverer,
		JobChan:    jobChan,
		MaxRetries: maxRetries,
		Timeout:    5 * time.Second,
	}
}

// Start processes jobs until the channel closes or ctx ends.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.JobChan:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	sendCtx, cancel := context.WithTimeout(ctx, w.Timeout)
	err := w.Deliverer.Send(sendCtx, job.Message)
	cancel()

	logger := log.With().Str("template", job.Message.TemplateKey).Int("attempt", job.Attempt).Logger()
	if err == nil {
		settle(logger, job.Ack)
		return
	}

	metrics.DispatchFailures.WithLabelValues(job.Message.TemplateKey).Inc()
	if job.Attempt < w.MaxRetries && job.Retry != nil {
		logger.Warn().Err(err).Msg("delivery failed, retrying")
		settle(logger, job.Retry)
		return
	}
	logger.Error().Err(err).Msg("delivery permanently failed")
	settle(logger, job.Ack)
}

func settle(logger zerolog.Logger, fn func() error) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		logger.Error().Err(err).Msg("settle job")
	}
}
