package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/logfang/internal/config"
	"github.com/Sumatoshi-tech/logfang/internal/embed"
	"github.com/Sumatoshi-tech/logfang/internal/embedcache"
	"github.com/Sumatoshi-tech/logfang/internal/extract"
	"github.com/Sumatoshi-tech/logfang/internal/observability"
	"github.com/Sumatoshi-tech/logfang/internal/queue"
	"github.com/Sumatoshi-tech/logfang/internal/registry"
	"github.com/Sumatoshi-tech/logfang/internal/vectorstore"
	"github.com/Sumatoshi-tech/logfang/internal/worker"
)

// WorkerCommand holds flags for the embedding worker command.
type WorkerCommand struct {
	configPath string
	verbose    bool
}

// NewWorkerCommand creates the embedding worker command.
func NewWorkerCommand() *cobra.Command {
	wc := &WorkerCommand{}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the embedding worker loop",
		Long: `Run the adaptive embedding worker: drain the job queue, embed
canonical rows, upsert them into the vector index, and advance checkpoints.
The batch tuner and the observability HTTP server run alongside the loop.

The first SIGINT/SIGTERM lets the current job finish; a second one aborts.`,
		Args: cobra.NoArgs,
		RunE: wc.run,
	}

	cmd.Flags().StringVar(&wc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().BoolVarP(&wc.verbose, "verbose", "v", false, "Log per-job progress")

	return cmd
}

func (wc *WorkerCommand) run(cmd *cobra.Command, _ []string) error {
	logger := newLogger(wc.verbose)

	cfg, err := loadConfig(wc.configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	flushTelemetry, telemetryErr := initTelemetry(ctx, cfg, "logfang-worker", logger)
	if telemetryErr != nil {
		return telemetryErr
	}
	defer flushTelemetry()

	pool, poolErr := openWarehouse(ctx, cfg)
	if poolErr != nil {
		return poolErr
	}
	defer pool.Close()

	redisClient := openRedis(cfg)
	defer redisClient.Close()

	qdrantClient, qdrantErr := openQdrant(cfg)
	if qdrantErr != nil {
		return qdrantErr
	}

	checkpoints := checkpoint.NewRegistry(redisClient, logger)
	jobs := queue.New(redisClient, logger)
	embedder := embed.NewClient(cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.Dimension, checkpoints, logger)
	embedder.SetCache(embedcache.New(cfg.Embedding.CacheBytes))

	writer := vectorstore.NewWriter(qdrantClient, cfg.Qdrant.Collection, cfg.Embedding.Dimension, checkpoints, logger)
	source := wc.rowSource(cfg, pool, logger)

	w := worker.New(jobs, checkpoints, source, embedder, writer, logger)
	w.SetIntervals(
		parseDuration(cfg.Worker.PollInterval, worker.DefaultPollInterval),
		parseDuration(cfg.Worker.DequeueTimeout, worker.DefaultDequeueTimeout),
	)

	tuner := checkpoint.NewTuner(checkpoints, parseDuration(cfg.Worker.TuneInterval, checkpoint.DefaultTuneInterval), logger)
	go tuner.Run(ctx)

	server := wc.startObservability(ctx, cfg, pool, checkpoints, w, logger)
	if server != nil {
		defer func() {
			shutdownErr := server.Shutdown(context.Background())
			if shutdownErr != nil {
				logger.Warn("observability shutdown failed", "error", shutdownErr)
			}
		}()
	}

	go handleSignals(w, cancel, logger)

	return w.Run(ctx)
}

// rowSource picks the canonical row source from configuration: the master
// table (default) or the raw source tables.
func (wc *WorkerCommand) rowSource(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) worker.Source {
	if cfg.Worker.Source == config.WorkerSourceRaw {
		return worker.NewRawSource(registry.New(pool, logger), extract.New(pool, logger))
	}

	return worker.NewMasterSource(pool)
}

// startObservability starts the metrics/health server when enabled. A
// metrics bootstrap failure degrades to health endpoints only.
func (wc *WorkerCommand) startObservability(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, checkpoints *checkpoint.Registry, w *worker.Worker, logger *slog.Logger) *observability.Server {
	if !cfg.Observability.Enabled {
		return nil
	}

	provider, metricsHandler, meterErr := observability.NewMeterProvider(ctx, telemetryConfig(cfg, "logfang-worker"))
	if meterErr != nil {
		logger.Warn("metrics setup failed, serving health only", "error", meterErr)

		metricsHandler = nil
	}

	if provider != nil {
		throughput, metricsErr := observability.NewThroughputMetrics(provider.Meter("logfang/worker"))
		if metricsErr != nil {
			logger.Warn("throughput instruments unavailable", "error", metricsErr)
		} else {
			w.SetMetrics(throughput)
		}
	}

	server := observability.NewServer(cfg.Observability.Addr, metricsHandler, logger,
		observability.PingCheck("warehouse", func(ctx context.Context) error { return pool.Ping(ctx) }),
		observability.PingCheck("broker", checkpoints.Ping),
	)

	go func() {
		serveErr := server.Start()
		if serveErr != nil {
			logger.Error("observability server failed", "error", serveErr)
		}
	}()

	return server
}

// handleSignals maps the first SIGINT/SIGTERM to a graceful stop and the
// second to a hard cancel.
func handleSignals(w *worker.Worker, cancel context.CancelFunc, logger *slog.Logger) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	<-signals
	logger.Info("shutdown requested, finishing current job")
	w.Stop()

	<-signals
	logger.Warn("second signal, aborting")
	cancel()
}
