package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/michaeladamstrickland/convexa-backend/internal/crm"
	"github.com/michaeladamstrickland/convexa-backend/internal/enrichment"
	"github.com/michaeladamstrickland/convexa-backend/internal/matchmaking"
	"github.com/michaeladamstrickland/convexa-backend/internal/webhooks"
	"github.com/michaeladamstrickland/convexa-backend/pkg/config"
	"github.com/michaeladamstrickland/convexa-backend/pkg/db"
	"github.com/michaeladamstrickland/convexa-backend/pkg/enums"
	"github.com/michaeladamstrickland/convexa-backend/pkg/lifecycle"
	"github.com/michaeladamstrickland/convexa-backend/pkg/logger"
	"github.com/michaeladamstrickland/convexa-backend/pkg/metrics"
	"github.com/michaeladamstrickland/convexa-backend/pkg/migrate"
	"github.com/michaeladamstrickland/convexa-backend/pkg/queue"
	"github.com/michaeladamstrickland/convexa-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "pipeline-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "pipeline-worker"

	logg = logger.New(logger.Options{
		ServiceName: "pipeline-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	closers := lifecycle.NewRegistry()
	defer func() {
		if err := closers.Close(); err != nil {
			logg.Error(context.Background(), "error during shutdown", err)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	closers.Register(dbClient)

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	closers.Register(redisClient)

	registry := prometheus.NewRegistry()
	collector := metrics.NewPipelineMetrics(registry)

	producer, err := queue.NewProducer(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build queue producer", err)
		os.Exit(1)
	}

	service, err := buildService(cfg, logg, dbClient, redisClient, producer, collector, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire pipeline service", err)
		os.Exit(1)
	}
	for _, worker := range service.workers {
		closers.Register(worker)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting pipeline worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "pipeline worker stopped unexpectedly", err)
		stop()
		if cerr := closers.Close(); cerr != nil {
			logg.Error(ctx, "error during shutdown", cerr)
		}
		os.Exit(1)
	}

	logg.Info(ctx, "pipeline worker shutting down gracefully")
}

// buildService wires repositories, domain services, and one queue worker per
// pipeline queue.
func buildService(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	producer *queue.Producer,
	collector *metrics.PipelineMetrics,
	registry *prometheus.Registry,
) (*Service, error) {
	conn := dbClient.DB()

	for _, name := range []enums.QueueName{enums.QueueEnrichment, enums.QueueMatchmaking, enums.QueueWebhook} {
		key := redisClient.QueueKey(string(name))
		metrics.RegisterQueueDepth(registry, string(name), func(ctx context.Context) (int64, error) {
			return redisClient.QueueLen(ctx, key)
		})
	}

	webhookRepo := webhooks.NewRepository(conn)
	fanout, err := webhooks.NewFanOut(webhooks.FanOutParams{
		Repo:     webhookRepo,
		Producer: producer,
		Logger:   logg,
		Attempts: cfg.Webhook.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	activities, err := crm.NewService(crm.ServiceParams{
		Repo:      crm.NewRepository(conn),
		Publisher: fanout,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	matchSvc, err := matchmaking.NewService(matchmaking.ServiceParams{
		Repo:       matchmaking.NewRepository(conn),
		Producer:   producer,
		Activities: activities,
		Publisher:  fanout,
		Metrics:    collector,
		Logger:     logg,
		Attempts:   cfg.Queue.DefaultAttempts,
	})
	if err != nil {
		return nil, err
	}

	enrichSvc, err := enrichment.NewService(enrichment.ServiceParams{
		Repo:       enrichment.NewRepository(conn),
		Activities: activities,
		Publisher:  fanout,
		Trigger:    matchSvc,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	deliverySvc, err := webhooks.NewService(webhooks.ServiceParams{
		Repo:     webhookRepo,
		Sender:   webhooks.NewSender(cfg.Webhook.RequestTimeout),
		Producer: producer,
		Metrics:  collector,
		Guard:    redisClient,
		Logger:   logg,
		Attempts: cfg.Webhook.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	newWorker := func(name enums.QueueName, handler queue.Handler, concurrency int) (*queue.Worker, error) {
		return queue.NewWorker(queue.WorkerParams{
			Queue:           string(name),
			Store:           redisClient,
			Handler:         handler,
			Logger:          logg,
			Metrics:         collector,
			Concurrency:     concurrency,
			BackoffBase:     cfg.Queue.BackoffBase,
			BackoffMax:      cfg.Queue.BackoffMax,
			PromoteInterval: cfg.Queue.PromoteInterval,
			PopBlock:        cfg.Queue.PopBlock,
		})
	}

	enrichWorker, err := newWorker(enums.QueueEnrichment, enrichSvc.Handle, cfg.Queue.EnrichmentConcurrency)
	if err != nil {
		return nil, err
	}
	matchWorker, err := newWorker(enums.QueueMatchmaking, matchSvc.Handle, cfg.Queue.MatchmakingConcurrency)
	if err != nil {
		return nil, err
	}
	deliveryWorker, err := newWorker(enums.QueueWebhook, deliverySvc.Handle, cfg.Queue.WebhookConcurrency)
	if err != nil {
		return nil, err
	}

	return NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Workers:  []*queue.Worker{enrichWorker, matchWorker, deliveryWorker},
		Registry: registry,
	})
}
