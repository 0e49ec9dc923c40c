package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/orderflow-backend/internal/analytics/router"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/types"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/worker"
	"github.com/angelmondragon/orderflow-backend/internal/analytics/writer"
	"github.com/angelmondragon/orderflow-backend/pkg/bigquery"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/orderflow-backend/pkg/pubsub"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

const flushTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "analytics-worker"

	logg = logger.ForService("analytics-worker", cfg.App)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer closeResource(ctx, logg, "redis client", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.AnalyticsResources(cfg.PubSub), logg)
	requireResource(ctx, logg, "pubsub", err)
	defer closeResource(ctx, logg, "pubsub client", pubsubClient.Close)

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, analyticsTables(cfg.BigQuery), logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer closeResource(ctx, logg, "bigquery client", bqClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	analyticsWriter, err := writer.New(bqClient, writer.Config{
		Table:     bqClient.OrderEventsTable(),
		BatchSize: cfg.BigQuery.BatchSize,
	})
	requireResource(ctx, logg, "analytics bigquery writer", err)

	routingHandler, err := router.NewRouter(analyticsWriter, logg)
	requireResource(ctx, logg, "analytics router", err)

	service, err := worker.NewService(subscription, routingHandler, manager, logg,
		worker.WithMetrics(metrics.NewConsumerMetrics(prometheus.DefaultRegisterer, "analytics")),
	)
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logg.Info(logg.WithField(runCtx, "batchSize", cfg.BigQuery.BatchSize), "analytics worker ready")

	runErr := service.Run(runCtx)

	// Buffered rows were already acked; they must reach BigQuery before exit.
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := analyticsWriter.Flush(flushCtx); err != nil {
		logg.Error(ctx, "failed to flush analytics rows", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "analytics worker failed", runErr)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped")
}

func analyticsTables(cfg config.BigQueryConfig) []bigquery.TableDef {
	return []bigquery.TableDef{{
		Name:           cfg.OrderEventsTable,
		Schema:         types.OrderEventsSchema,
		PartitionField: types.OrderEventsPartitionField,
		Clustering:     types.OrderEventsClustering,
		Description:    "Order lifecycle, refund and payout events streamed from the outbox.",
	}}
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
