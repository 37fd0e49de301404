// Package main provides the entry point for the memchat server
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/memtensor/memchat/api"
	"github.com/memtensor/memchat/pkg/chat"
	"github.com/memtensor/memchat/pkg/config"
	"github.com/memtensor/memchat/pkg/database"
	"github.com/memtensor/memchat/pkg/events"
	"github.com/memtensor/memchat/pkg/interfaces"
	"github.com/memtensor/memchat/pkg/logger"
	"github.com/memtensor/memchat/pkg/metrics"
	"github.com/memtensor/memchat/pkg/uploads"
	"github.com/memtensor/memchat/pkg/users"
)

// Version information (set by build process)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Command line flags
var (
	configFile  = flag.String("config", "", "Path to configuration file")
	envFile     = flag.String("env-file", ".env", "Path to a dotenv file loaded before the environment")
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("memchat %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := initializeLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting memchat", map[string]interface{}{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"addr":       cfg.Addr(),
	})

	appMetrics := metrics.NewInMemoryMetrics()

	db, err := database.Open(ctx, cfg.Database, cfg.StartupTimeout, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := database.Close(db); closeErr != nil {
			appLogger.Error("Failed to close database", closeErr)
		}
	}()

	checks := map[string]interfaces.HealthChecker{
		"database": api.HealthCheckFunc(func(ctx context.Context) error {
			return database.HealthCheck(ctx, db)
		}),
	}

	var limiter users.LoginLimiter
	if cfg.Redis.Enabled {
		client, err := connectRedis(ctx, cfg.Redis, cfg.StartupTimeout, appLogger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				appLogger.Error("Failed to close redis client", closeErr)
			}
		}()

		limiter = users.NewRedisLimiter(client, cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutDuration)
		checks["redis"] = api.HealthCheckFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.Enabled {
		natsPublisher, err := events.NewNATSPublisher(ctx, cfg.NATS, cfg.StartupTimeout, appLogger)
		if err != nil {
			return err
		}
		publisher = natsPublisher
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			appLogger.Error("Failed to close event publisher", closeErr)
		}
	}()

	userManager, err := users.NewManager(ctx, users.ConfigFromAuth(cfg.Auth), db, users.Dependencies{
		Limiter: limiter,
		Images:  uploads.NewImageStore(cfg.Uploads, appLogger),
		Events:  publisher,
		Metrics: appMetrics,
		Logger:  appLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create user manager: %w", err)
	}

	chatService, err := chat.NewService(ctx, db, userManager, chat.Dependencies{
		Events:  publisher,
		Metrics: appMetrics,
		Logger:  appLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create chat service: %w", err)
	}

	checks["users"] = userManager
	checks["chat"] = chatService

	server := api.NewServer(cfg.Server, api.Options{
		Users:   userManager,
		Chat:    chatService,
		Metrics: appMetrics,
		Logger:  appLogger,
		Checks:  checks,
	})

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}

	appLogger.Info("memchat stopped")
	return nil
}

func initializeLogger(cfg config.LogConfig) (interfaces.Logger, error) {
	if cfg.File == "" {
		return logger.NewConsoleLogger(cfg.Level), nil
	}
	return logger.NewFileLogger(cfg.Level, cfg.File)
}

// connectRedis dials redis and waits for the first successful ping
func connectRedis(ctx context.Context, cfg config.RedisConfig, maxElapsed time.Duration, log interfaces.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	retryConfig := backoff.NewExponentialBackOff()
	retryConfig.MaxElapsedTime = maxElapsed

	ping := func() error {
		return client.Ping(ctx).Err()
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("Redis not ready, retrying", map[string]interface{}{
			"addr":  cfg.Addr,
			"error": err.Error(),
			"wait":  wait.String(),
		})
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(retryConfig, ctx), notify); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
