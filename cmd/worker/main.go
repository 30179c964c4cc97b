// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/fieldsales-recruit/internal/config"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
	"github.com/unclebandit/fieldsales-recruit/internal/notify"
	"github.com/unclebandit/fieldsales-recruit/internal/service"
)

const (
	maxRetries = 3
	prefetch   = 10
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup("worker", cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required")
	}

	catalog, err := notify.LoadCatalog(cfg.TemplatesPath)
	if err != nil {
		return err
	}
	deliverer := &notify.Direct{Renderer: notify.NewRenderer(catalog), Sender: notify.LogSender{}}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return errors.Wrap(err, "dial amqp")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open amqp channel")
	}
	defer ch.Close()

	if err := notify.DeclareQueue(ch, cfg.AMQPQueue); err != nil {
		return err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return errors.Wrap(err, "set qos")
	}
	deliveries, err := ch.Consume(cfg.AMQPQueue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume")
	}

	republisher := &notify.AMQPDispatcher{Channel: ch, Queue: cfg.AMQPQueue}
	jobs := make(chan service.Job)
	worker := service.NewWorker(deliverer, jobs, maxRetries)
	worker.Timeout = cfg.NotifyTimeout

	log.Info().Str("queue", cfg.AMQPQueue).Msg("worker consuming")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return pump(gctx, deliveries, jobs, republisher)
	})
	return g.Wait()
}

// pump feeds deliveries to the worker until ctx ends. A closed delivery
// channel means the broker connection dropped.
func pump(ctx context.Context, deliveries <-chan amqp.Delivery, jobs chan<- service.Job, republisher *notify.AMQPDispatcher) error {
	defer close(jobs)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			job, ok := toJob(ctx, d, republisher)
			if !ok {
				continue
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// toJob wraps a delivery for the worker. Undecodable bodies are acked and
// dropped, since redelivering them can never succeed.
func toJob(ctx context.Context, d amqp.Delivery, republisher *notify.AMQPDispatcher) (service.Job, bool) {
	msg, err := notify.Decode(d.Body)
	if err != nil {
		log.Error().Err(err).Uint64("tag", d.DeliveryTag).Msg("dropping malformed notification")
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error().Err(ackErr).Msg("ack malformed notification")
		}
		return service.Job{}, false
	}

	attempt := notify.Attempt(d.Headers)
	return service.Job{
		Message: msg,
		Attempt: attempt,
		Ack:     func() error { return d.Ack(false) },
		Retry: func() error {
			if err := republisher.Publish(context.WithoutCancel(ctx), msg, attempt+1); err != nil {
				return d.Nack(false, true)
			}
			return d.Ack(false)
		},
	}, true
}
