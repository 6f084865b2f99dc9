package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/config"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/generator"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/payload"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/storage"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/logger"
	"github.com/joshuadwieczorek/ga-queue-processor/shared/postgresql"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue report jobs for every active account",
	Long:  "Loads report definitions and queues one job per definition, date window and account. Only definitions due on the run date are queued unless --all is set.",
	RunE:  runEnqueue,
}

var (
	enqueueConfig      string
	enqueueDefinitions string
	enqueueAll         bool
	enqueueDate        string
	enqueueReports     []string
)

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueConfig, "config", "c", envOr("WORKER_SERVICE_CONFIG_PATH", "configs/worker-service/config.yaml"), "Path to configuration file")
	enqueueCmd.Flags().StringVarP(&enqueueDefinitions, "definitions", "d", "configs/reports.yaml", "Path to report definitions file")
	enqueueCmd.Flags().BoolVar(&enqueueAll, "all", false, "Queue every definition regardless of schedule")
	enqueueCmd.Flags().StringVar(&enqueueDate, "date", "", "Run date as YYYY-MM-DD (default today)")
	enqueueCmd.Flags().StringSliceVar(&enqueueReports, "report", nil, "Only queue the named definitions")

	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	now, err := runDate(enqueueDate)
	if err != nil {
		return err
	}

	defs, err := generator.LoadDefinitions(enqueueDefinitions)
	if err != nil {
		return err
	}
	defs, err = selectDefinitions(defs, enqueueReports)
	if err != nil {
		return err
	}

	cfg, err := config.Load(enqueueConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateEnqueueConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbClient, err := postgresql.NewClient(ctx, cfg.Database.Client(), appLogger.Component("queue-db"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

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
		Now:      func() time.Time { return now },
	})

	count, err := gen.Run(ctx, defs, !enqueueAll)
	appLogger.Info("Enqueue finished",
		slog.Int("definitions", len(defs)),
		slog.Int("jobs", count),
		slog.String("date", now.Format(time.DateOnly)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "queued %d jobs\n", count)
	return err
}

// runDate parses the --date flag, defaulting to the current UTC day
func runDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", value, err)
	}
	return t, nil
}

func selectDefinitions(defs []generator.ReportDefinition, names []string) ([]generator.ReportDefinition, error) {
	if len(names) == 0 {
		return defs, nil
	}

	byName := make(map[string]generator.ReportDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	selected := make([]generator.ReportDefinition, 0, len(names))
	for _, name := range names {
		def, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown report definition %q", name)
		}
		selected = append(selected, def)
	}
	return selected, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
