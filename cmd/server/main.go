package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"github.com/rl1809/correlator/internal/adapter/analytics"
	"github.com/rl1809/correlator/internal/adapter/broker"
	"github.com/rl1809/correlator/internal/adapter/handler"
	"github.com/rl1809/correlator/internal/adapter/producer"
	"github.com/rl1809/correlator/internal/adapter/storage"
	"github.com/rl1809/correlator/internal/config"
	"github.com/rl1809/correlator/internal/core/service"
	"github.com/rl1809/correlator/internal/port"
)

const readinessInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.Redis.KeyPrefix)

	checks := []handler.Check{{Name: "redis", Probe: redisAdapter.Ping}}

	// Initialize MySQL attempt ledger, optional
	var (
		db     *sql.DB
		ledger port.AttemptLedger
	)
	if cfg.MySQL.DSN != "" {
		dsn, err := storage.NormalizeDSN(cfg.MySQL.DSN)
		if err != nil {
			logger.Fatal("invalid mysql dsn", zap.Error(err))
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			logger.Fatal("failed to open mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping mysql", zap.Error(err))
		}
		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate attempt ledger", zap.Error(err))
		}
		ledger = mysqlAdapter
		checks = append(checks, handler.Check{Name: "mysql", Probe: mysqlAdapter.Ping})
		logger.Info("connected to mysql, attempt ledger enabled")
	} else {
		logger.Info("no mysql dsn configured, attempt ledger disabled")
	}

	// Initialize outbound clients
	sink, err := analytics.NewClient(logger, cfg.AnalyticsClientConfig())
	if err != nil {
		logger.Fatal("invalid analytics config", zap.Error(err))
	}
	producerClient, err := producer.NewClient(cfg.Producer.BaseURL, cfg.Producer.Timeout, logger)
	if err != nil {
		logger.Fatal("invalid producer config", zap.Error(err))
	}

	// Initialize service
	correlationService := service.NewCorrelationService(redisAdapter, sink, ledger, cfg.CorrelationOptions(), logger)
	opts := correlationService.Options()
	logger.Info("correlation service ready",
		zap.Duration("ttl", opts.TTL),
		zap.String("unmatched_policy", string(opts.Unmatched)),
		zap.String("delivery_failure_policy", string(opts.DeliveryFailure)),
		zap.Int("max_redeliveries", opts.MaxRedeliveries),
	)

	// Start consumers
	brokerLogger := logger.Named("broker")
	conn := broker.NewConnection(cfg.RabbitMQ.URL, brokerLogger)
	gate := broker.NewGate()
	consumerCfg := broker.ConsumerConfig{
		Prefetch:       cfg.RabbitMQ.Prefetch,
		ReconnectDelay: cfg.RabbitMQ.ReconnectDelay,
	}
	consumers := broker.NewGroup(conn, gate,
		broker.NewConsumer(conn, broker.NewCustomerHandler(cfg.RabbitMQ.CustomerQueue, correlationService, brokerLogger), gate, consumerCfg, brokerLogger),
		broker.NewConsumer(conn, broker.NewProductHandler(cfg.RabbitMQ.InventoryQueue, correlationService, brokerLogger), gate, consumerCfg, brokerLogger),
	)
	consumerCtx, stopConsumers := context.WithCancel(ctx)
	consumers.Start(consumerCtx)

	checks = append(checks, handler.Check{Name: "rabbitmq", Probe: func(context.Context) error {
		if !consumers.Connected() {
			return errors.New("not connected")
		}
		return nil
	}})

	// Initialize gRPC health server
	readiness := handler.NewReadiness(logger, checks...)
	go readiness.Run(ctx, readinessInterval)

	grpcServer := grpc.NewServer()
	readiness.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.Server.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(correlationService, consumers, producerClient, readiness, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	readiness.Shutdown()

	// Stop consumers first so no delivery is cut off mid-attempt
	stopConsumers()
	consumers.Wait()
	logger.Info("consumers stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Close connections
	if err := consumers.Close(); err != nil {
		logger.Warn("failed to close rabbitmq connection", zap.Error(err))
	}
	rdb.Close()
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
