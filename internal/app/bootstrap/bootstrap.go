package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	entitysync "schemabridge/contexts/replication/entity-sync"
	legacyadapter "schemabridge/contexts/replication/entity-sync/adapters/legacy"
	postgresadapter "schemabridge/contexts/replication/entity-sync/adapters/postgres"
	eventprocessor "schemabridge/contexts/replication/event-processor"
	kafkaadapter "schemabridge/contexts/replication/event-processor/adapters/kafka"
	memoryadapter "schemabridge/contexts/replication/event-processor/adapters/memory"
	redisadapter "schemabridge/contexts/replication/event-processor/adapters/redis"
	processorapp "schemabridge/contexts/replication/event-processor/application"
	"schemabridge/contexts/replication/event-processor/ports"
	"schemabridge/internal/platform/config"
	"schemabridge/internal/platform/connect"
	"schemabridge/internal/platform/db"
	"schemabridge/internal/platform/httpserver"
	"schemabridge/internal/platform/messaging"
	"schemabridge/internal/platform/metrics"
	"schemabridge/internal/platform/retry"
	"schemabridge/internal/shared/events"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres   *db.Postgres
	legacy     *pgxpool.Pool
	redis      goredis.UniversalClient
	processors eventprocessor.Module
	sources    []ports.MessageSource
	server     *httpserver.Server
	connect    *connect.Client
	connectors []string
	retry      retry.Policy
	logger     *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}

	module := entitysync.NewModule(entitysync.Dependencies{
		Mappings: repo,
		Ledger:   repo,
		Clock:    postgresadapter.SystemClock{},
		Logger:   logger,
	})
	server := httpserver.New(httpserver.Options{
		Sync:  &module,
		Ready: pg.Ping,
	}, logger, normalizeAddr(cfg.HTTPPort))

	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker(ctx context.Context) (_ *WorkerApp, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	app := &WorkerApp{
		connectors: cfg.ConnectConnectors,
		retry:      retryPolicy(cfg),
		logger:     logger,
	}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.postgres, err = db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	repo := postgresadapter.NewRepository(app.postgres.DB, logger)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	app.legacy, err = db.ConnectLegacy(ctx, cfg.LegacyPostgresDSN)
	if err != nil {
		return nil, err
	}

	sync := entitysync.NewModule(entitysync.Dependencies{
		Mappings:   repo,
		Ledger:     repo,
		Bookkeeper: repo,
		NewSchema:  repo,
		Legacy:     legacyadapter.NewRepository(app.legacy, logger),
		Clock:      postgresadapter.SystemClock{},
		Logger:     logger,
	})

	var cache ports.DependencyCache
	if cfg.RedisAddr != "" {
		app.redis = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs: []string{cfg.RedisAddr},
		})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		cache = redisadapter.NewCache(app.redis, cfg.MemoryCacheExpiration)
	} else {
		cache = memoryadapter.NewCache(cfg.MemoryCacheExpiration, nil)
	}

	oldToNew, err := app.openSource(cfg, cfg.KafkaOldToNewTopics, events.OldToNew)
	if err != nil {
		return nil, err
	}
	newToOld, err := app.openSource(cfg, cfg.KafkaNewToOldTopics, events.NewToOld)
	if err != nil {
		return nil, err
	}

	processorMetrics := metrics.NewProcessor()
	app.processors = eventprocessor.NewModule(eventprocessor.Dependencies{
		OldToNewSource: oldToNew,
		NewToOldSource: newToOld,
		Appliers: map[events.AggregateType]ports.EntityApplier{
			events.AggregateCustomer:    sync.Customers,
			events.AggregateInvoice:     sync.Invoices,
			events.AggregateInvoiceLine: sync.InvoiceLines,
			events.AggregateAddress:     sync.Addresses,
		},
		Cache:   cache,
		Clock:   postgresadapter.SystemClock{},
		Metrics: processorMetrics,
		Retry:   app.retry,
		Resolver: processorapp.ResolverConfig{
			Delay:                   cfg.SortingDelay,
			AdditionalConsume:       cfg.SortingAdditionalConsume,
			MaxWait:                 cfg.SortingMaxWait,
			StrictMissingDependency: cfg.StrictMissingDependency,
		},
		BatchSize: cfg.BatchSize,
		Logger:    logger,
	})

	app.server = httpserver.New(httpserver.Options{
		State:   app.processors.State,
		Metrics: processorMetrics.Handler(),
		Ready:   app.postgres.Ping,
	}, logger, normalizeAddr(cfg.HTTPPort))
	if cfg.ConnectURL != "" {
		app.connect = connect.NewClient(cfg.ConnectURL, logger)
	}
	return app, nil
}

func (w *WorkerApp) openSource(cfg config.Config, topics []string, direction events.Direction) (ports.MessageSource, error) {
	reader, err := messaging.NewReader(messaging.ReaderConfig{
		Brokers:       cfg.KafkaBrokers,
		ConsumerGroup: cfg.KafkaConsumerGroup + "." + string(direction),
		Topics:        topics,
	}, w.logger)
	if err != nil {
		return nil, fmt.Errorf("%s consumer: %w", direction, err)
	}
	source := kafkaadapter.NewSource(reader)
	w.sources = append(w.sources, source)
	return source, nil
}

func retryPolicy(cfg config.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialInterval > 0 {
		policy.InitialInterval = cfg.RetryInitialInterval
	}
	if cfg.RetryMaxInterval > 0 {
		policy.MaxInterval = cfg.RetryMaxInterval
	}
	return policy
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	return a.server.Run(ctx)
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

// Run waits for the capture pipeline, then runs both flow directions and
// the status server until ctx is cancelled or one of them fails.
func (w *WorkerApp) Run(ctx context.Context) error {
	if w.connect != nil {
		if err := w.connect.WaitHealthy(ctx, w.connectors, w.retry); err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, processor := range w.processors.Processors() {
		group.Go(func() error {
			return processor.Run(groupCtx)
		})
	}
	group.Go(func() error {
		return w.server.Run(groupCtx)
	})

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"processors", len(w.processors.Processors()),
	)
	return group.Wait()
}

func (w *WorkerApp) Close() error {
	var errs []error
	for _, source := range w.sources {
		errs = append(errs, source.Close())
	}
	if w.redis != nil {
		errs = append(errs, w.redis.Close())
	}
	if w.legacy != nil {
		w.legacy.Close()
	}
	if w.postgres != nil {
		errs = append(errs, w.postgres.Close())
	}
	return errors.Join(errs...)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
