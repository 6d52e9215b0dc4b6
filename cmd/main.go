package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/tejusbharadwaj/seriesfetch/internal/cache"
	"github.com/tejusbharadwaj/seriesfetch/internal/config"
	"github.com/tejusbharadwaj/seriesfetch/internal/database"
	"github.com/tejusbharadwaj/seriesfetch/internal/decompose"
	"github.com/tejusbharadwaj/seriesfetch/internal/fetch"
	server "github.com/tejusbharadwaj/seriesfetch/internal/grpc"
	middleware "github.com/tejusbharadwaj/seriesfetch/internal/grpc/middlewares"
	"github.com/tejusbharadwaj/seriesfetch/internal/scheduler"
	"github.com/tejusbharadwaj/seriesfetch/internal/series"
)

// Command seriesfetch serves aggregated personal time series over gRPC.
//
// The service supports:
//   - Aggregation of raw samples into 15min, hour, day, week and month buckets
//   - Calendar-indexed document stores (in-memory, PostgreSQL, DynamoDB)
//   - Result memoization in an LRU or in Redis, purged on a cron schedule
//   - Prometheus metrics and a standard gRPC health service
//
// Usage:
//
//	seriesfetch [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	// Load configuration
	appConfig, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger, err := newLogger(appConfig.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	loc, err := appConfig.Fetch.Location()
	if err != nil {
		logger.Fatalf("Failed to load timezone: %v", err)
	}

	registry, err := loadRegistry(appConfig.Fetch.SeriesFile)
	if err != nil {
		logger.Fatalf("Failed to load series registry: %v", err)
	}

	store, err := createStore(appConfig.Store, logger)
	if err != nil {
		logger.Fatalf("Failed to create store: %v", err)
	}

	metrics, err := middleware.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatalf("Failed to register metrics: %v", err)
	}

	results, err := createCache(appConfig.Cache)
	if err != nil {
		logger.Fatalf("Failed to create cache: %v", err)
	}

	decomposer := decompose.New(store,
		decompose.WithLocation(loc),
		decompose.WithMaxConcurrency(appConfig.Fetch.MaxConcurrency),
		decompose.WithLeafCounter(metrics.LeafQueries),
		decompose.WithLogger(logger),
	)

	opts := []fetch.Option{
		fetch.WithLocation(loc),
		fetch.WithCacheCounter(metrics.CacheLookups),
		fetch.WithLogger(logger),
	}
	if results != nil {
		opts = append(opts, fetch.WithResultCache(results))
	}
	orchestrator, err := fetch.New(registry, store, decomposer, opts...)
	if err != nil {
		logger.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Create and setup gRPC server
	serverConfig := server.ServerConfig{
		RateLimit:      appConfig.RateLimit.RPS,
		RateLimitBurst: appConfig.RateLimit.Burst,
		MaxRange:       appConfig.Server.MaxRange,
		Location:       loc,
	}
	srv, health, err := server.SetupServer(orchestrator, serverConfig, metrics, logger)
	if err != nil {
		logger.Fatalf("Failed to setup server: %v", err)
	}

	// Start listening
	addr := fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalf("Failed to listen: %v", err)
	}

	// Create a context that will be canceled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background services
	errChan := make(chan error, 2)

	purger := scheduler.NewScheduler(orchestrator, appConfig.Cache.PurgeSchedule, logger)
	if err := purger.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	var metricsServer *http.Server
	if appConfig.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(appConfig.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Handle shutdown gracefully
	go handleShutdown(ctx, shutdownTargets{
		srv:       srv,
		health:    health,
		scheduler: purger,
		metrics:   metricsServer,
		store:     store,
	}, logger, errChan)

	logger.WithFields(logrus.Fields{
		"addr":     addr,
		"store":    appConfig.Store.Backend,
		"cache":    appConfig.Cache.Backend,
		"series":   len(registry.All()),
		"timezone": loc.String(),
	}).Info("Starting gRPC server")

	go func() {
		if err := srv.Serve(lis); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for any error, or nil after a clean shutdown
	if err := <-errChan; err != nil {
		logger.Fatalf("Service error: %v", err)
	}
	logger.Info("Server stopped")
}

func newLogger(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json", "":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return logger, nil
}

func loadRegistry(path string) (*series.Registry, error) {
	if path == "" {
		return series.Default()
	}
	return series.LoadFile(path)
}

func createStore(cfg config.StoreConfig, logger logrus.FieldLogger) (database.DocumentStore, error) {
	switch cfg.Backend {
	case "postgres":
		return database.NewPostgresStore(cfg.Postgres.ConnectionString(), cfg.Postgres.MaxConnections)
	case "dynamodb":
		return database.NewDynamoStore(database.DynamoConfig{
			Region:       cfg.DynamoDB.Region,
			Endpoint:     cfg.DynamoDB.Endpoint,
			SamplesTable: cfg.DynamoDB.SamplesTable,
			CatalogTable: cfg.DynamoDB.CatalogTable,
		})
	case "memory":
		logger.Warn("Using an empty in-memory store")
		return database.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// createCache returns nil when result memoization is disabled.
func createCache(cfg config.CacheConfig) (cache.Cache[fetch.Result], error) {
	switch cfg.Backend {
	case "lru":
		return cache.NewLRU[fetch.Result](cfg.Size)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		return cache.NewRedis[fetch.Result](client, cfg.Redis.Prefix, cfg.TTL), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

type shutdownTargets struct {
	srv       *grpc.Server
	health    *server.HealthChecker
	scheduler *scheduler.Scheduler
	metrics   *http.Server
	store     database.DocumentStore
}

// Handle graceful shutdown
func handleShutdown(ctx context.Context, t shutdownTargets, logger *logrus.Logger, errChan chan<- error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("Context canceled, initiating shutdown")
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Received signal, initiating shutdown")
	}

	// Report NOT_SERVING before draining
	t.health.Shutdown()

	logger.Info("Gracefully stopping server...")
	t.srv.GracefulStop()
	t.scheduler.Stop()

	if t.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.metrics.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to stop metrics server")
		}
	}

	// Clean up the store
	if err := t.store.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close store")
	}

	errChan <- nil
}
