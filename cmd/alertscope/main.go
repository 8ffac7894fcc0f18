// Package main is the entry point for the AlertScope alerts explorer service.
// It initializes all components and starts the HTTP server and filter-change processor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"alertscope/internal/alertsapi"
	esalerts "alertscope/internal/alertsapi/es"
	"alertscope/internal/alertsapi/kibana"
	memoryalerts "alertscope/internal/alertsapi/memory"
	"alertscope/internal/alertsquery"
	"alertscope/internal/api"
	"alertscope/internal/banner"
	"alertscope/internal/config"
	"alertscope/internal/dataview"
	"alertscope/internal/explorer"
	"alertscope/internal/filtergroup"
	"alertscope/internal/notification"
	"alertscope/internal/processor"
	"alertscope/internal/queue"
	kafkaqueue "alertscope/internal/queue/kafka"
	memoryqueue "alertscope/internal/queue/memory"
	"alertscope/internal/store"
	memorystor "alertscope/internal/store/memory"
	postgresstor "alertscope/internal/store/postgres"
	redisstor "alertscope/internal/store/redis"
	"alertscope/schema"
)

// sampleAlertCount is how many alerts the memory backend starts with.
const sampleAlertCount = 250

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	banner.Print(os.Stdout)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		initLogger(config.Default().Logger).Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
		"backend", cfg.Backend.Type,
	)

	// Initialize dependencies based on storage mode
	deps, cleanup, err := initDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start processor in background
	go func() {
		if err := deps.processor.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("processor error", "error", err)
			cancel()
		}
	}()

	// Start HTTP server
	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("AlertScope started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
		"backend", deps.backend,
	)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := deps.manager.Close(); err != nil {
		logger.Error("session shutdown error", "error", err)
	}

	if err := deps.processor.Stop(); err != nil {
		logger.Error("processor shutdown error", "error", err)
	}

	logger.Info("AlertScope stopped")
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server    *api.Server
	processor *processor.Service
	manager   *explorer.Manager
	backend   string
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		kv           store.KeyValueStore
		cache        store.ResultCache
		producer     queue.Producer
		consumer     queue.Consumer
		cleanupFuncs []func()
	)

	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	if cfg.Storage.UseMemory() {
		// Initialize in-memory implementations
		logger.Info("initializing in-memory storage")

		memKV := memorystor.NewKeyValueStore()
		kv = memKV
		cleanupFuncs = append(cleanupFuncs, func() { _ = memKV.Close() })

		memCache := memorystor.NewResultCache()
		cache = memCache
		cleanupFuncs = append(cleanupFuncs, func() { _ = memCache.Close() })

		memQueue := memoryqueue.NewQueue(10000)
		producer = memQueue
		consumer = memQueue
		cleanupFuncs = append(cleanupFuncs, func() { _ = memQueue.Close() })
	} else {
		// Initialize real storage implementations
		logger.Info("initializing production storage (Kafka, Redis, PostgreSQL)",
			"key_value", cfg.Storage.KeyValue,
		)

		// Redis backs the result cache and, by default, control-group storage
		redisClient, err := redisstor.NewClient(&cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisClient.Close() })
		cache = redisstor.NewResultCache(redisClient, cfg.Redis.KeyPrefix)

		switch cfg.Storage.KeyValue {
		case config.KeyValuePostgres:
			ctx := context.Background()
			db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			cleanupFuncs = append(cleanupFuncs, db.Close)

			// Run migrations
			if err := db.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, err
			}
			logger.Info("database migrations completed")
			kv = postgresstor.NewKeyValueStore(db)
		default:
			kv = redisstor.NewKeyValueStore(redisClient, cfg.Redis.KeyPrefix)
		}

		// Initialize Kafka
		kafkaProducer := kafkaqueue.NewProducer(&cfg.Kafka, logger)
		producer = kafkaProducer
		cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaProducer.Close() })

		kafkaConsumer := kafkaqueue.NewConsumer(&cfg.Kafka, logger)
		consumer = kafkaConsumer
		cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaConsumer.Close() })
	}

	client, loader, err := initBackend(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	logger.Info("alerts backend initialized", "backend", client.Name())

	toasts := notification.NewToasts(notification.DefaultRecentLimit, logger)
	views := dataview.NewMemoryService(loader, logger)
	resolver := dataview.NewResolver(client, client, views, toasts, logger)
	coordinator := alertsquery.NewCoordinator(client, client.Name(), alertsquery.Options{
		Cache:        cache,
		CacheTTL:     cfg.Query.CacheTTL,
		FetchTimeout: cfg.Query.FetchTimeout,
	}, logger)

	// Filter changes leave through the queue and come back through the processor
	sink := filtergroup.NewQueueSink(producer, logger)
	manager := explorer.NewManager(explorer.Dependencies{
		Resolver:        resolver,
		Fetcher:         coordinator,
		Storage:         kv,
		Sinks:           sink.SessionSink,
		DefaultControls: cfg.FilterGroup.DefaultControls,
		DebounceDelay:   cfg.FilterGroup.DebounceDelay,
		MaxControls:     cfg.FilterGroup.MaxControls,
		DefaultPageSize: cfg.Query.DefaultPageSize,
	}, logger)

	processorService := processor.NewService(consumer, manager, logger)

	// Initialize HTTP server
	server := api.NewServer(api.ServerDeps{
		Config:              &cfg.Server,
		Logger:              logger,
		SearchHandler:       api.NewSearchHandler(coordinator, resolver, views, logger),
		SessionHandler:      api.NewSessionHandler(manager, logger),
		FilterGroupHandler:  api.NewFilterGroupHandler(manager, logger),
		NotificationHandler: api.NewNotificationHandler(toasts),
		IngestHandler:       api.NewIngestHandler(sink, logger),
	})

	return &dependencies{
		server:    server,
		processor: processorService,
		manager:   manager,
		backend:   client.Name(),
	}, cleanup, nil
}

// initBackend creates the alerts backend selected in config. The returned
// loader is nil when the backend cannot load fields for index patterns.
func initBackend(cfg *config.Config) (alertsapi.Client, dataview.FieldLoader, error) {
	switch cfg.Backend.Type {
	case config.BackendElasticsearch:
		client, err := esalerts.New(&cfg.Elasticsearch)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case config.BackendKibana:
		return kibana.New(&cfg.Kibana), nil, nil
	case config.BackendMemory:
		client := memoryalerts.NewClient(schema.SampleAlerts(time.Now(), sampleAlertCount))
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type %q", cfg.Backend.Type)
	}
}

// initLogger creates and configures the application logger.
func initLogger(cfg config.LoggerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
