package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ticketloom/ticketloom-backend/internal/cron"
	"github.com/ticketloom/ticketloom-backend/internal/holds"
	"github.com/ticketloom/ticketloom-backend/internal/inventory"
	"github.com/ticketloom/ticketloom-backend/internal/orders"
	"github.com/ticketloom/ticketloom-backend/internal/tickets"
	"github.com/ticketloom/ticketloom-backend/internal/waitlist"
	"github.com/ticketloom/ticketloom-backend/pkg/config"
	"github.com/ticketloom/ticketloom-backend/pkg/db"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
	"github.com/ticketloom/ticketloom-backend/pkg/metrics"
	"github.com/ticketloom/ticketloom-backend/pkg/migrate"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox"
	"github.com/ticketloom/ticketloom-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
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

	holdsSvc, ordersSvc, waitlistSvc, err := buildSweepServices(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire sweep services", err)
		os.Exit(1)
	}

	holdExpiryJob, err := cron.NewHoldExpiryJob(cron.HoldExpiryJobParams{
		Logger:    logg,
		Holds:     holdsSvc,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create hold expiry job", err)
		os.Exit(1)
	}

	orderExpiryJob, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger:    logg,
		Orders:    ordersSvc,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order expiry job", err)
		os.Exit(1)
	}

	waitlistExpiryJob, err := cron.NewWaitlistExpiryJob(cron.WaitlistExpiryJobParams{
		Logger:    logg,
		Waitlist:  waitlistSvc,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create waitlist expiry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, cfg.Cron.LockKey, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(holdExpiryJob, orderExpiryJob, waitlistExpiryJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildSweepServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (holds.Service, orders.Service, waitlist.Service, error) {
	gormDB := dbClient.DB()

	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)
	invMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)
	tierRepo := inventory.NewRepository(gormDB)

	holdsSvc, err := holds.NewService(holds.NewRepository(gormDB), tierRepo, dbClient, outboxSvc, cfg.Checkout, invMetrics)
	if err != nil {
		return nil, nil, nil, err
	}

	ticketsSvc, err := tickets.NewService(tickets.NewRepository(gormDB), tierRepo, dbClient, outboxSvc)
	if err != nil {
		return nil, nil, nil, err
	}

	ordersSvc, err := orders.NewService(orders.NewRepository(gormDB), holdsSvc, ticketsSvc, tierRepo, dbClient, outboxSvc, cfg.Checkout, cfg.Refund, logg)
	if err != nil {
		return nil, nil, nil, err
	}

	waitlistSvc, err := waitlist.NewService(waitlist.NewRepository(gormDB), tierRepo, dbClient, outboxSvc, cfg.Waitlist)
	if err != nil {
		return nil, nil, nil, err
	}

	// expired holds and orders free seats for the queue
	holdsSvc.SetFreedNotifier(waitlistSvc)
	holdsSvc.SetOfferResolver(waitlistSvc)
	ordersSvc.SetFreedNotifier(waitlistSvc)

	return holdsSvc, ordersSvc, waitlistSvc, nil
}
