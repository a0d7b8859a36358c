package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/foundry-mes/foundry-mes/internal/app"
	"github.com/foundry-mes/foundry-mes/internal/bom"
	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/masterdata/components"
	"github.com/foundry-mes/foundry-mes/internal/masterdata/products"
	"github.com/foundry-mes/foundry-mes/internal/masterdata/suppliers"
	"github.com/foundry-mes/foundry-mes/internal/masterdata/warehouses"
	"github.com/foundry-mes/foundry-mes/internal/materials"
	"github.com/foundry-mes/foundry-mes/internal/notifications"
	"github.com/foundry-mes/foundry-mes/internal/observability"
	"github.com/foundry-mes/foundry-mes/internal/orders"
	"github.com/foundry-mes/foundry-mes/internal/platform/cache"
	"github.com/foundry-mes/foundry-mes/internal/platform/db"
	"github.com/foundry-mes/foundry-mes/internal/procurement"
	"github.com/foundry-mes/foundry-mes/internal/sales"
	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/stocktake"
	"github.com/foundry-mes/foundry-mes/internal/workorders"
	"github.com/foundry-mes/foundry-mes/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, unread counters degrade to database reads", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	taskClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	notifyService := notifications.NewService(logger, notifications.NewRepository(pool), taskClient, redisClient)
	notifyHandler := notifications.NewHandler(logger, notifyService)

	componentsService := components.NewService(components.NewRepository(pool))
	warehousesService := warehouses.NewService(warehouses.NewRepository(pool))
	suppliersService := suppliers.NewService(suppliers.NewRepository(pool))
	productsService := products.NewService(products.NewRepository(pool))

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, metrics)
	resolver := bom.NewResolver(bom.NewSource(pool))

	ordersService := orders.NewService(logger, orders.NewRepository(pool), orders.NewProductChecker(pool),
		notifyService, auditLogger, approvalRecorder)

	materialsService := materials.NewService(logger, materials.NewRepository(pool), resolver,
		materials.NewWorkOrderReader(pool), notifyService, auditLogger, metrics, cfg.DefaultWarehouseID)

	workOrdersService := workorders.NewService(logger, workorders.NewRepository(pool), materialsService,
		idempotencyStore, auditLogger, metrics, cfg.DefaultWarehouseID)

	stocktakeService := stocktake.NewService(logger, stocktake.NewRepository(pool), auditLogger,
		stocktake.Config{RejectUnexpected: cfg.StocktakeRejectUnexpected})

	procurementService := procurement.NewService(logger, procurement.NewRepository(pool), auditLogger, metrics)
	salesService := sales.NewService(logger, sales.NewRepository(pool), auditLogger, metrics, cfg.DefaultWarehouseID)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ComponentsHandler:  components.NewHandler(logger, componentsService),
		WarehousesHandler:  warehouses.NewHandler(logger, warehousesService),
		SuppliersHandler:   suppliers.NewHandler(logger, suppliersService),
		ProductsHandler:    products.NewHandler(logger, productsService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		OrdersHandler:      orders.NewHandler(logger, ordersService),
		WorkOrdersHandler:  workorders.NewHandler(logger, workOrdersService),
		MaterialsHandler:   materials.NewHandler(logger, materialsService),
		StocktakeHandler:   stocktake.NewHandler(logger, stocktakeService),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		SalesHandler:       sales.NewHandler(logger, salesService),
		NotifyHandler:      notifyHandler,
		JobsHandler:        jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
