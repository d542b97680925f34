package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ticketloom/ticketloom-backend/api/routes"
	"github.com/ticketloom/ticketloom-backend/internal/events"
	"github.com/ticketloom/ticketloom-backend/internal/holds"
	"github.com/ticketloom/ticketloom-backend/internal/inventory"
	"github.com/ticketloom/ticketloom-backend/internal/notifications"
	"github.com/ticketloom/ticketloom-backend/internal/orders"
	"github.com/ticketloom/ticketloom-backend/internal/tickets"
	"github.com/ticketloom/ticketloom-backend/internal/waitlist"
	"github.com/ticketloom/ticketloom-backend/pkg/config"
	"github.com/ticketloom/ticketloom-backend/pkg/db"
	"github.com/ticketloom/ticketloom-backend/pkg/logger"
	"github.com/ticketloom/ticketloom-backend/pkg/metrics"
	"github.com/ticketloom/ticketloom-backend/pkg/migrate"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox/idempotency"
	"github.com/ticketloom/ticketloom-backend/pkg/redis"
)

const (
	webhookDedupeTTL = 7 * 24 * time.Hour
	shutdownGrace    = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	deps, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(deps),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Deps, error) {
	gormDB := dbClient.DB()

	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)
	invMetrics := metrics.NewInventoryMetrics(prometheus.DefaultRegisterer)

	tierRepo := inventory.NewRepository(gormDB)

	inventorySvc, err := inventory.NewService(tierRepo, invMetrics)
	if err != nil {
		return routes.Deps{}, err
	}

	eventsSvc, err := events.NewService(events.NewRepository(gormDB))
	if err != nil {
		return routes.Deps{}, err
	}

	holdsSvc, err := holds.NewService(holds.NewRepository(gormDB), tierRepo, dbClient, outboxSvc, cfg.Checkout, invMetrics)
	if err != nil {
		return routes.Deps{}, err
	}

	ticketsSvc, err := tickets.NewService(tickets.NewRepository(gormDB), tierRepo, dbClient, outboxSvc)
	if err != nil {
		return routes.Deps{}, err
	}

	ordersSvc, err := orders.NewService(orders.NewRepository(gormDB), holdsSvc, ticketsSvc, tierRepo, dbClient, outboxSvc, cfg.Checkout, cfg.Refund, logg)
	if err != nil {
		return routes.Deps{}, err
	}

	waitlistSvc, err := waitlist.NewService(waitlist.NewRepository(gormDB), tierRepo, dbClient, outboxSvc, cfg.Waitlist)
	if err != nil {
		return routes.Deps{}, err
	}

	// released and refunded inventory flows straight into waitlist offers
	holdsSvc.SetFreedNotifier(waitlistSvc)
	holdsSvc.SetOfferResolver(waitlistSvc)
	ordersSvc.SetFreedNotifier(waitlistSvc)

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		return routes.Deps{}, err
	}

	webhookGuard, err := idempotency.NewManager(redisClient, webhookDedupeTTL)
	if err != nil {
		return routes.Deps{}, err
	}

	return routes.Deps{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Events:        eventsSvc,
		Inventory:     inventorySvc,
		Holds:         holdsSvc,
		Orders:        ordersSvc,
		Tickets:       ticketsSvc,
		Waitlist:      waitlistSvc,
		Notifications: notificationsSvc,
		WebhookGuard:  webhookGuard,
	}, nil
}
