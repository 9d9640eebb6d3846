// Package server boots the storefront: it connects the backing services,
// builds the HTTP handler and runs the HTTP, gRPC, queue and scheduler
// loops until the context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/controllers"
	"github.com/shashiranjanraj/bunkar/app/jobs"
	"github.com/shashiranjanraj/bunkar/app/listeners"
	"github.com/shashiranjanraj/bunkar/app/routes"
	"github.com/shashiranjanraj/bunkar/app/schema"
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/config"
	"github.com/shashiranjanraj/bunkar/internal/kernel"
	"github.com/shashiranjanraj/bunkar/pkg/audit"
	"github.com/shashiranjanraj/bunkar/pkg/cache"
	"github.com/shashiranjanraj/bunkar/pkg/database"
	"github.com/shashiranjanraj/bunkar/pkg/event"
	gql "github.com/shashiranjanraj/bunkar/pkg/graphql"
	"github.com/shashiranjanraj/bunkar/pkg/grpc"
	"github.com/shashiranjanraj/bunkar/pkg/logger"
	"github.com/shashiranjanraj/bunkar/pkg/notification"
	"github.com/shashiranjanraj/bunkar/pkg/payment"
	"github.com/shashiranjanraj/bunkar/pkg/queue"
	"github.com/shashiranjanraj/bunkar/pkg/recaptcha"
	"github.com/shashiranjanraj/bunkar/pkg/schedule"
	"github.com/shashiranjanraj/bunkar/pkg/session"
	"github.com/shashiranjanraj/bunkar/pkg/sse"
	"github.com/shashiranjanraj/bunkar/pkg/storage"
	"github.com/shashiranjanraj/bunkar/pkg/workerpool"
	"github.com/shashiranjanraj/bunkar/pkg/ws"
)

const (
	eventWorkers   = 8
	queueWorkers   = 4
	shutdownBudget = 15 * time.Second
)

// App holds the wired services of one process.
type App struct {
	DB      *gorm.DB
	Gateway payment.Gateway
	Audit   audit.Recorder
	Hub     *ws.Hub
	Broker  *sse.Broker
	Pool    *workerpool.Pool

	Auth    *services.AuthService
	Catalog *services.CatalogService
	Orders  *services.OrderService
	Contact *services.ContactService
}

// Connect loads configuration and opens the database. It is all the
// migrate and seed commands need.
func Connect() (*gorm.DB, error) {
	if err := config.Load(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Reset(config.AppEnv())

	if err := database.Connect(); err != nil {
		return nil, err
	}
	return database.DB, nil
}

// Boot connects everything the server needs. Redis, MongoDB and S3 are
// optional; without them the process uses in-memory cache, sessions,
// queue and audit trail, and the local disk.
func Boot(ctx context.Context) (*App, error) {
	db, err := Connect()
	if err != nil {
		return nil, err
	}

	if err := cache.Connect(ctx); err != nil {
		logger.Warn("redis unavailable, using in-process cache, sessions and queue", "error", err)
	} else {
		queue.SetDriver(queue.NewRedisDriver(ctx, cache.RDB))
	}
	queue.UseDB(db)
	storage.Connect(ctx)
	notification.SetSlackWebhook(config.SlackWebhook())

	gateway := newGateway()
	jobs.Configure(jobs.Deps{Gateway: gateway, DB: db})

	var rec audit.Recorder = audit.NewMemory()
	if uri := config.MongoURI(); uri != "" {
		m, err := audit.NewMongo(ctx, uri, config.MongoDatabase())
		if err != nil {
			logger.Warn("mongo unavailable, audit trail kept in memory", "error", err)
		} else {
			rec = m
		}
	}

	pool := workerpool.New(eventWorkers)
	event.UsePool(pool)

	a := &App{
		DB:      db,
		Gateway: gateway,
		Audit:   rec,
		Hub:     ws.NewHub(),
		Broker:  sse.Default,
		Pool:    pool,
		Auth:    services.NewAuthService(db),
		Catalog: services.NewCatalogService(db, config.CatalogCacheTTL()),
		Orders:  services.NewOrderService(db, gateway, services.OrderConfigFromEnv()),
		Contact: services.NewContactService(db, recaptcha.NewClientFromConfig(), config.RecaptchaMinScore(), config.StoreInbox()),
	}
	listeners.Register(listeners.Deps{Audit: a.Audit, Hub: a.Hub, Broker: a.Broker, Contact: a.Contact})
	return a, nil
}

// newGateway talks to the real gateway whenever keys are configured.
// Outside production a missing key falls back to the in-process fake.
func newGateway() payment.Gateway {
	if config.PaymentKeyID() == "" && config.AppEnv() != "production" {
		logger.Warn("PAYMENT_KEY_ID not set, using the fake payment gateway")
		return payment.NewFake()
	}
	return payment.NewClientFromConfig()
}

// RouteDeps builds the controllers over a's services.
func (a *App) RouteDeps() (routes.Deps, error) {
	catalogSchema, err := schema.Catalog(a.Catalog)
	if err != nil {
		return routes.Deps{}, fmt.Errorf("graphql: %w", err)
	}
	return routes.Deps{
		Auth:     controllers.NewAuthController(a.Auth),
		Products: controllers.NewProductController(a.Catalog),
		Cart:     controllers.NewCartController(a.Catalog),
		Orders:   controllers.NewOrderController(a.Orders, a.Broker, a.Audit),
		Contact:  controllers.NewContactController(a.Contact),
		GraphQL:  gql.Handler(catalogSchema),
		Hub:      a.Hub,
	}, nil
}

func (a *App) checks() map[string]kernel.Checker {
	checks := map[string]kernel.Checker{"database": database.Ping}
	if cache.Available() {
		checks["redis"] = func(ctx context.Context) error { return cache.RDB.Ping(ctx).Err() }
	}
	return checks
}

// Handler builds the HTTP handler.
func (a *App) Handler() (http.Handler, error) {
	deps, err := a.RouteDeps()
	if err != nil {
		return nil, err
	}
	return kernel.Handler(deps, kernel.Options{
		Session: session.DefaultOptions(),
		Checks:  a.checks(),
	}), nil
}

// Schedule registers the recurring tasks.
func (a *App) Schedule() {
	schedule.Hourly().Name("orders:expire-pending").WithoutOverlapping().Run(func(ctx context.Context) error {
		n, err := a.Orders.ExpirePending(ctx)
		if n > 0 {
			logger.Info("expired pending orders", "count", n)
		}
		return err
	})
}

// Serve runs until ctx is cancelled or the HTTP server fails, then shuts
// everything down.
func (a *App) Serve(ctx context.Context) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}

	go a.Hub.Run(ctx)
	queue.StartWorkers(ctx, queueWorkers)
	a.Schedule()
	schedule.Start(ctx)

	grpcSrv, err := grpc.Start(config.GRPCPort(), database.Ping)
	if err != nil {
		return err
	}
	defer grpc.Stop(grpcSrv)

	srv := &http.Server{
		Addr:              ":" + config.AppPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http: server starting", "addr", srv.Addr, "env", config.AppEnv())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("http: shutting down")
	case err := <-serverErr:
		return fmt.Errorf("http: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownBudget)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http: shutdown", "error", err)
	}
	a.Close(shutdownCtx)
	return nil
}

// Close drains async listeners and releases connections.
func (a *App) Close(ctx context.Context) {
	if err := a.Pool.Shutdown(ctx); err != nil {
		logger.Warn("event listeners still running at shutdown", "error", err, "running", a.Pool.Running(), "backlog", a.Pool.Backlog())
	}
	if err := a.Audit.Close(ctx); err != nil {
		logger.Warn("audit: close", "error", err)
	}
	if cache.RDB != nil {
		_ = cache.RDB.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
