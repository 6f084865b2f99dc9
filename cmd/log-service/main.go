package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/config"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/eventlog"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/metrics"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/storage"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/logger"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/postgresql"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/rabbitmq"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("LOG_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/log-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateLogServiceConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting log service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.Int("buffer_size", cfg.EventLog.BufferSize),
		slog.Int("batch_size", cfg.EventLog.BatchSize),
		slog.Duration("flush_interval", cfg.EventLog.FlushInterval),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbClient, err := postgresql.NewClient(ctx, cfg.Database.Client(), appLogger.Component("queue-db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	mqConfig := cfg.RabbitMQ.Client()
	// one unacknowledged delivery per buffered message at most
	if mqConfig.PrefetchCount <= 0 || mqConfig.PrefetchCount > cfg.EventLog.BufferSize {
		mqConfig.PrefetchCount = cfg.EventLog.BufferSize
	}

	rabbitClient, err := rabbitmq.NewClient(ctx, mqConfig, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: m.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("Metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer srv.Close()
	}

	consumerTag := cfg.RabbitMQ.Consumer.Tag
	if consumerTag == "" {
		consumerTag = cfg.App.Name
	}

	reader := eventlog.NewReader(rabbitClient, consumerTag, appLogger.Component("log-reader"))
	persister := eventlog.NewPersister(&eventlog.PersisterConfig{
		Store:         storage.NewStorage(dbClient.DB(), appLogger.Component("queue-logs")),
		Logger:        appLogger.Component("log-persister"),
		BatchSize:     cfg.EventLog.BatchSize,
		FlushInterval: cfg.EventLog.FlushInterval,
		OnFlush:       m.LogFlush,
	})

	messages := make(chan eventlog.Message, cfg.EventLog.BufferSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reader.Run(gctx, messages)
	})
	g.Go(func() error {
		return persister.Run(gctx, messages)
	})

	appLogger.Info("Log service started successfully")

	if err := g.Wait(); err != nil {
		appLogger.Error("Log service stopped with error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("Log service shutdown complete")
	return nil
}
