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
	"github.com/joshuadwieczorek/ga-queue-processor/internal/classifier"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/config"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/eventlog"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/metrics"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/payload"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/report"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/sink"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/logger"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/postgresql"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/rabbitmq"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	kindFlag := flag.String("kind", "all", "Job kind to process: scheduled, manual or all")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	kinds, err := selectKinds(*kindFlag, cfg.Processor)
	if err != nil {
		return err
	}

	appLogger, err := logger.New(cfg.Logging.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Any("kinds", kinds),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbClient, err := postgresql.NewClient(ctx, cfg.Database.Client(), appLogger.Component("queue-db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := rabbitmq.NewClient(ctx, cfg.RabbitMQ.Client(), appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	codec, err := payload.NewCodecFromHex(cfg.Payload.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize payload codec: %w", err)
	}

	m := metrics.New()
	metricsServer := startMetricsServer(cfg.Metrics.Addr, m, appLogger.Logger)

	downloader := initDownloader(&cfg.Downloader, m, appLogger.Component("downloader"))
	publisher := eventlog.NewPublisher(rabbitClient, appLogger.Component("eventlog"))
	queues := worker.NewQueueOpener(dbClient, cfg.Processor.ClaimLease, appLogger.Component("queue"))
	sinks := worker.NewSinkOpener(sink.NewOpener(cfg.Sink.Client().DSN(), appLogger.Component("sink")))
	patterns := classifier.NewPatternCache()
	createdBy := actorName(cfg.App.Name)

	workers := make([]*worker.Worker, 0, len(kinds))
	for _, kind := range kinds {
		kc := cfg.Processor.For(kind)
		workers = append(workers, worker.NewWorker(&worker.Config{
			Kind:                kind,
			SimultaneousBatches: kc.SimultaneousBatches,
			QueueBatchSize:      kc.QueueBatchSize,
			WaitTime:            kc.WaitTime,
			IdleWait:            cfg.Processor.IdleWait,
			CreatedBy:           createdBy,
			Queues:              queues,
			Sinks:               sinks,
			Decoder:             codec,
			Downloader:          downloader,
			Publisher:           publisher,
			Patterns:            patterns,
			Metrics:             m,
			Logger:              appLogger.Component("worker"),
		}))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			return w.Start(gctx)
		})
	}

	appLogger.Info("Worker service started successfully", slog.Int("workers", len(workers)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case <-gctx.Done():
		appLogger.Error("Worker stopped unexpectedly")
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var runErr error
	select {
	case runErr = <-done:
		appLogger.Info("Workers stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// selectKinds resolves the -kind flag against the enabled kinds
func selectKinds(flagValue string, processor config.ProcessorConfig) ([]domain.Kind, error) {
	var requested []domain.Kind
	if flagValue == "" || flagValue == "all" {
		requested = domain.Kinds()
	} else {
		kind, err := domain.ParseKind(flagValue)
		if err != nil {
			return nil, err
		}
		requested = []domain.Kind{kind}
	}

	var kinds []domain.Kind
	for _, kind := range requested {
		if processor.For(kind).Enabled {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no enabled processor kind matches %q", flagValue)
	}
	return kinds, nil
}

func initDownloader(cfg *config.DownloaderConfig, m *metrics.Metrics, logger *slog.Logger) *report.Downloader {
	retry := report.NewRetryPolicy(logger)
	retry.MaxAttempts = cfg.MaxAttempts
	retry.Delay = cfg.RetryDelay
	retry.OnFailure = func(attempt int, err error) {
		reason := "error"
		if _, ok := report.RateLimitWindow(err); ok {
			reason = "rate_limit"
		}
		m.DownloadRetry(reason)
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	return report.NewDownloader(&report.DownloaderConfig{
		Clients:        report.NewAnalyticsClients(logger, opts...),
		Retry:          retry,
		PageDelay:      cfg.PageDelay,
		PageSize:       cfg.PageSize,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
}

func startMetricsServer(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("Metrics server listening", slog.String("address", addr))
	return srv
}

// actorName identifies this process in system columns and log events
func actorName(app string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return app
	}
	return app + "@" + host
}
