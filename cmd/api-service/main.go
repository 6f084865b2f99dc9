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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/handler"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/api/router"
	apistorage "github.com/joshuadwieczorek/ga-queue-processor/internal/api/storage"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/config"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/generator"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/metrics"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/payload"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/storage"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/logger"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/postgresql"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := postgresql.NewClient(context.Background(), cfg.Database.Client(), appLogger.Component("queue-db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	codec, err := payload.NewCodecFromHex(cfg.Payload.Key)
	if err != nil {
		return fmt.Errorf("failed to initialize payload codec: %w", err)
	}

	queue := storage.NewStorage(dbClient.DB(), appLogger.Component("queue"))
	gen := generator.New(&generator.Config{
		Accounts: queue,
		Queue:    queue,
		Encoder:  codec,
		Logger:   appLogger.Component("generator"),
	})

	deps := &handler.Dependencies{
		Logger:   appLogger.Component("api"),
		Health:   dbClient,
		Jobs:     apistorage.NewStorage(dbClient.DB()),
		Accounts: queue,
		Enqueuer: gen,
		Metrics:  metrics.New(),
		Timeout:  cfg.Server.WriteTimeout,
	}

	r := initRouter(cfg.App.Environment, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.String("error", err.Error()),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter sets the gin mode and builds the router
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
