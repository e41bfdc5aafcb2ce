package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/orderledger/internal/app"
	checkoutconsumer "github.com/angelmondragon/orderledger/internal/consumers/checkout"
	paymentconsumer "github.com/angelmondragon/orderledger/internal/consumers/payment"
	"github.com/angelmondragon/orderledger/pkg/config"
	"github.com/angelmondragon/orderledger/pkg/db"
	"github.com/angelmondragon/orderledger/pkg/instance"
	"github.com/angelmondragon/orderledger/pkg/logger"
	"github.com/angelmondragon/orderledger/pkg/metrics"
	"github.com/angelmondragon/orderledger/pkg/migrate"
	"github.com/angelmondragon/orderledger/pkg/outbox"
	"github.com/angelmondragon/orderledger/pkg/outbox/idempotency"
	"github.com/angelmondragon/orderledger/pkg/queue"
	"github.com/angelmondragon/orderledger/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.Bootstrap(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	broker, err := app.NewBroker(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap broker", err)
		os.Exit(1)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			logg.Error(context.Background(), "error closing broker", err)
		}
	}()

	notifications, err := broker.Factory.Publisher(queue.StreamNotification)
	if err != nil {
		logg.Error(context.Background(), "failed to open notification publisher", err)
		os.Exit(1)
	}
	defer func() {
		if err := notifications.Close(); err != nil {
			logg.Error(context.Background(), "error closing notification publisher", err)
		}
	}()

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	services, err := app.NewServices(app.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Notifier: notifications,
		Metrics:  pipelineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	checkoutHandler, err := checkoutconsumer.NewConsumer(services.Orders, manager, services.Gateways.Notifier, logg, pipelineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout consumer", err)
		os.Exit(1)
	}
	paymentHandler, err := paymentconsumer.NewConsumer(services.Orders, manager, logg, pipelineMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment consumer", err)
		os.Exit(1)
	}

	checkoutSource, err := broker.Factory.Consumer(queue.StreamCheckout)
	if err != nil {
		logg.Error(context.Background(), "failed to open checkout stream", err)
		os.Exit(1)
	}
	paymentSource, err := broker.Factory.Consumer(queue.StreamPayment)
	if err != nil {
		logg.Error(context.Background(), "failed to open payment stream", err)
		os.Exit(1)
	}

	dropped := recordDropped(logg, outbox.NewDLQRepository(dbClient.DB()))
	for _, source := range []queue.Consumer{checkoutSource, paymentSource} {
		if kc, ok := source.(*queue.KafkaConsumer); ok {
			kc.OnDrop(dropped)
		}
	}

	service, err := NewService(ServiceParams{
		Logger: logg,
		DB:     dbClient,
		Redis:  redisClient,
		Broker: broker,
		Subscriptions: []Subscription{
			{Name: "checkout", Source: checkoutSource, Runner: checkoutHandler},
			{Name: "payment", Source: paymentSource, Runner: paymentHandler},
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(cfg.Service.Kind),
		"queueDriver": cfg.Queue.Driver,
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
