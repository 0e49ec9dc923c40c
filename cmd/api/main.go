package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/orderflow-backend/api/routes"
	"github.com/angelmondragon/orderflow-backend/internal/address"
	"github.com/angelmondragon/orderflow-backend/internal/audit"
	"github.com/angelmondragon/orderflow-backend/internal/cart"
	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/disputes"
	"github.com/angelmondragon/orderflow-backend/internal/finance"
	"github.com/angelmondragon/orderflow-backend/internal/notifications"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	"github.com/angelmondragon/orderflow-backend/internal/returns"
	"github.com/angelmondragon/orderflow-backend/internal/shipments"
	"github.com/angelmondragon/orderflow-backend/internal/vouchers"
	"github.com/angelmondragon/orderflow-backend/pkg/auth"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	cfg.Service.Kind = "api"

	logg = logger.ForService("api", cfg.App)
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	requireResource(bootCtx, logg, "database", err)
	defer closeResource(bootCtx, logg, "database", dbClient.Close)

	requireResource(bootCtx, logg, "dev migrations", migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient))

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	requireResource(bootCtx, logg, "redis", err)
	defer closeResource(bootCtx, logg, "redis client", redisClient.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	tokens, err := auth.NewTokens(cfg.JWT)
	requireResource(bootCtx, logg, "jwt", err)

	deps, err := buildDependencies(cfg, logg, dbClient, orderMetrics)
	requireResource(bootCtx, logg, "services", err)
	deps.Tokens = tokens
	deps.DB = dbClient
	deps.Redis = redisClient
	deps.RedisPing = redisClient
	deps.Registry = registry

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, orderMetrics *metrics.OrderMetrics) (routes.Dependencies, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	notifier := notifications.NewSink(emitter, logg)
	auditor := audit.NewSink(logg)
	ledger := payments.NewLedger(conn, payments.NewMockGateway(), logg)

	engine, err := orders.NewEngine(ledger, emitter, orderMetrics, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orderRepo,
		Tx:       dbClient,
		Engine:   engine,
		Tracker:  shipments.NewTracker(conn),
		Emitter:  emitter,
		Notifier: notifier,
		Audit:    auditor,
		Currency: cfg.Checkout.Currency,
		Logger:   logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	returnSvc, err := returns.NewService(orderSvc, returns.NewRepository(conn), dbClient)
	if err != nil {
		return routes.Dependencies{}, err
	}
	refundSvc, err := refunds.NewService(refunds.Params{
		Orders:  orderSvc,
		Repo:    refunds.NewRepository(conn),
		Tx:      dbClient,
		Ledger:  ledger,
		Emitter: emitter,
		Metrics: orderMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	disputeSvc, err := disputes.NewService(orderSvc, disputes.NewRepository(conn), dbClient)
	if err != nil {
		return routes.Dependencies{}, err
	}
	financeSvc, err := finance.NewService(finance.ServiceParams{
		Tx:      dbClient,
		Repo:    finance.NewRepository(conn),
		Config:  cfg.Finance,
		Audit:   auditor,
		Metrics: orderMetrics,
		Logger:  logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	addressSvc, err := address.NewService(conn)
	if err != nil {
		return routes.Dependencies{}, err
	}
	cartRepo := cart.NewRepository(conn)
	cartSvc, err := cart.NewService(conn, cartRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:        dbClient,
		Repo:      checkout.NewRepository(conn),
		Cart:      cartRepo,
		Addresses: addressSvc,
		Vouchers:  vouchers.NewService(conn),
		Ledger:    ledger,
		Orders:    orderRepo,
		Emitter:   emitter,
		Notifier:  notifier,
		Config:    cfg.Checkout,
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Orders:       orderSvc,
		Returns:      returnSvc,
		Refunds:      refundSvc,
		Disputes:     disputeSvc,
		Finance:      financeSvc,
		Checkout:     checkoutSvc,
		Cart:         cartSvc,
		Addresses:    addressSvc,
		DeadLetters:  outbox.NewDLQRepository(conn),
		OutboxEvents: outboxRepo,
	}, nil
}

func closeResource(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "failed to close "+name, err)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
