// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/fieldsales-recruit/internal/auth"
	"github.com/unclebandit/fieldsales-recruit/internal/codegen"
	"github.com/unclebandit/fieldsales-recruit/internal/config"
	"github.com/unclebandit/fieldsales-recruit/internal/controller"
	"github.com/unclebandit/fieldsales-recruit/internal/db"
	"github.com/unclebandit/fieldsales-recruit/internal/handler"
	"github.com/unclebandit/fieldsales-recruit/internal/lock"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
	"github.com/unclebandit/fieldsales-recruit/internal/notify"
	"github.com/unclebandit/fieldsales-recruit/internal/queue"
	"github.com/unclebandit/fieldsales-recruit/internal/repository"
	"github.com/unclebandit/fieldsales-recruit/internal/repository/memory"
	"github.com/unclebandit/fieldsales-recruit/internal/secrets"
	"github.com/unclebandit/fieldsales-recruit/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup("server", cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	store, pinger, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeStore)

	dispatcher, closeDispatcher, err := newDispatcher(cfg)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeDispatcher)

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeLocker)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	vouchers := &service.VoucherService{
		Store:         store,
		Codes:         codegen.New(),
		Dispatcher:    dispatcher,
		Locker:        locker,
		RedeemURL:     cfg.RedeemURL,
		NotifyTimeout: cfg.NotifyTimeout,
	}
	rt := &handler.Router{
		Users:     &controller.UserController{UserService: &service.UserService{Store: store, Tokens: tokens}},
		Campaigns: &controller.CampaignController{CampaignService: &service.CampaignService{Store: store, Vouchers: vouchers}},
		Recruits:  &controller.RecruitController{VoucherService: vouchers},
		Tokens:    tokens,
		DB:        pinger,

		AllowedOrigins: cfg.CORSOrigins,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rt.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore connects to Postgres, or builds a seeded in-memory store when no
// DATABASE_URL is configured.
func openStore(ctx context.Context, cfg config.Config) (repository.StoreInterface, handler.Pinger, func(), error) {
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return repository.NewStore(conn), conn, func() { conn.Close() }, nil
	}

	log.Warn().Msg("DATABASE_URL not set, using in-memory store")
	st := memory.New()
	pkgs, err := db.LoadPackages("")
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.SeedPackages(ctx, st, pkgs); err != nil {
		return nil, nil, nil, err
	}
	if cfg.Seed.Name != "" {
		provider, err := secrets.NewProvider(cfg.Seed.AppKey)
		if err != nil {
			return nil, nil, nil, err
		}
		b := &service.Bootstrapper{
			Store:   st,
			Secrets: provider,
			Seed: service.SeedAttributes{
				Name:     cfg.Seed.Name,
				Email:    cfg.Seed.Email,
				Mobile:   cfg.Seed.Mobile,
				Password: cfg.Seed.Password,
			},
			Deposit: cfg.Seed.Deposit,
		}
		if _, err := b.SeedSystemAccount(ctx); err != nil {
			return nil, nil, nil, err
		}
	}
	return st, nil, func() {}, nil
}

// newDispatcher publishes to RabbitMQ when AMQP_URL is set and otherwise
// delivers through the in-process queue.
func newDispatcher(cfg config.Config) (notify.Dispatcher, func(), error) {
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "dial amqp")
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, errors.Wrap(err, "open amqp channel")
		}
		if err := notify.DeclareQueue(ch, cfg.AMQPQueue); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, err
		}
		return &notify.AMQPDispatcher{Channel: ch, Queue: cfg.AMQPQueue}, func() {
			ch.Close()
			conn.Close()
		}, nil
	}

	catalog, err := notify.LoadCatalog(cfg.TemplatesPath)
	if err != nil {
		return nil, nil, err
	}
	q := queue.NewInMemoryQueue()
	deliverer := &notify.Direct{Renderer: notify.NewRenderer(catalog), Sender: notify.LogSender{}}
	if err := queue.StartNotificationSubscriber(q, deliverer, cfg.NotifyTimeout); err != nil {
		return nil, nil, err
	}
	return &queue.Dispatcher{Queue: q}, q.Wait, nil
}

func newLocker(ctx context.Context, cfg config.Config) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.Noop{}, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, errors.Wrap(err, "ping redis")
	}
	return lock.NewRedis(client, cfg.LockTTL), func() { client.Close() }, nil
}
