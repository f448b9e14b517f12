package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/events"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logging"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server_failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)

	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.SeedFile != "" {
		if err := seed(ctx, store, cfg.SeedFile); err != nil {
			return err
		}
		logging.WithTrace(logger, logging.SystemTraceID, logging.SystemSpanID).
			Info("seed_loaded", zap.String("file", cfg.SeedFile))
	}

	cache, closeCache, err := openCache(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var publisher port.EventPublisher = port.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		logger.Info("order_events_enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	svc := handler.Services{
		Cart: service.NewCartService(store, m),
		Checkout: service.NewCheckoutService(store, cache, publisher, m, service.CheckoutOptions{
			LockTTL:        cfg.Checkout.LockTTL,
			IdempotencyTTL: cfg.Checkout.IdempotencyTTL,
			Timeout:        cfg.Checkout.Timeout,
		}),
		Orders:    service.NewOrderService(store),
		Customers: service.NewCustomerService(store),
		Catalog:   service.NewCatalogService(store),
	}

	// gRPC
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogging(logger)))
	handler.RegisterCartServer(grpcServer, handler.NewGRPCHandler(svc))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Info("grpc_server_listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc_server_error", zap.Error(err))
		}
	}()

	// HTTP
	mux := handler.NewHTTPHandler(svc, handler.HeaderAuthenticator{}, logger, m).Routes()
	mux.Handle("GET /metrics", m.Handler())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http_server_listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	logger.Info("http_server_stopped")

	grpcServer.GracefulStop()
	logger.Info("grpc_server_stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (port.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("connected_to_mysql")
		return adapter, func() { db.Close() }, nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		if err := client.Ping(ctx, nil); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}
		adapter := storage.NewMongoAdapter(client, cfg.MongoDatabase)
		if err := adapter.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, err
		}
		logger.Info("connected_to_mongo", zap.String("database", cfg.MongoDatabase))
		return adapter, disconnect, nil

	default:
		logger.Info("using_memory_store")
		return storage.NewMemoryAdapter(), func() {}, nil
	}
}

func openCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (port.CacheRepository, func(), error) {
	if cfg.Addr == "" {
		return storage.NewMemoryCache(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("connected_to_redis", zap.String("addr", cfg.Addr))
	return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil
}

func seed(ctx context.Context, store port.Store, path string) error {
	s, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	items, err := s.ShopItems()
	if err != nil {
		return err
	}
	return storage.Seed(ctx, store, items, s.CustomerRecords())
}
