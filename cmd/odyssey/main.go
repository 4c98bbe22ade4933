package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/franchise-ops/internal/app"
	"github.com/odyssey-erp/franchise-ops/internal/audit"
	"github.com/odyssey-erp/franchise-ops/internal/cod"
	"github.com/odyssey-erp/franchise-ops/internal/dashboard"
	"github.com/odyssey-erp/franchise-ops/internal/integration"
	"github.com/odyssey-erp/franchise-ops/internal/inventory"
	"github.com/odyssey-erp/franchise-ops/internal/observability"
	"github.com/odyssey-erp/franchise-ops/internal/orders"
	"github.com/odyssey-erp/franchise-ops/internal/platform/cache"
	"github.com/odyssey-erp/franchise-ops/internal/platform/db"
	"github.com/odyssey-erp/franchise-ops/internal/receiving"
	"github.com/odyssey-erp/franchise-ops/internal/shared"
	"github.com/odyssey-erp/franchise-ops/jobs"
	"github.com/odyssey-erp/franchise-ops/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.AutoMigrate {
		applied, err := migrations.Apply(ctx, dbpool)
		if err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied", slog.Any("files", applied))
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("create job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	hooks := integration.NewHooks(nil, logger)
	if cfg.AMQPURL != "" {
		broker, err := integration.DialBroker(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("broker unavailable, events disabled", slog.Any("error", err))
		} else {
			hooks = integration.NewHooks(broker, logger)
			defer func() {
				if err := broker.Close(); err != nil {
					logger.Warn("broker close", slog.Any("error", err))
				}
			}()
		}
	}

	hooks.WithStockSnapshots(jobClient)

	metrics := observability.NewMetrics()
	locker := shared.NewFranchiseLocker(redisClient, cfg.FranchiseLockTTL, cfg.LockWait)
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), locker, auditLogger, logger, metrics)
	ordersService := orders.NewService(orders.NewRepository(dbpool), orders.ServiceConfig{ReturnWindow: cfg.ReturnWindow}, orders.ServiceDeps{
		Locker:      locker,
		Audit:       auditLogger,
		Integration: hooks,
		Logger:      logger,
		Metrics:     metrics,
	})
	receivingService := receiving.NewService(receiving.NewRepository(dbpool), receiving.ServiceConfig{DefaultUnitPrice: cfg.GRNDefaultUnitPrice}, receiving.ServiceDeps{
		Locker:      locker,
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Integration: hooks,
		Logger:      logger,
		Metrics:     metrics,
	})
	codService := cod.NewService(cod.NewRepository(dbpool), cod.ServiceDeps{
		Locker:      locker,
		Audit:       auditLogger,
		Integration: hooks,
		Logger:      logger,
		Metrics:     metrics,
	})
	dashboardService := dashboard.NewService(inventoryService, ordersService, codService,
		dashboard.NewCache(redisClient, cfg.DashboardCacheTTL), logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		OrdersHandler:    orders.NewHandler(logger, ordersService),
		ReceivingHandler: receiving.NewHandler(logger, receivingService),
		CODHandler:       cod.NewHandler(logger, codService),
		DashboardHandler: dashboard.NewHandler(logger, dashboardService),
		AuditHandler:     audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
