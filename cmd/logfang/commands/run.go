package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/logfang/internal/config"
	"github.com/Sumatoshi-tech/logfang/internal/extract"
	"github.com/Sumatoshi-tech/logfang/internal/jobstore"
	"github.com/Sumatoshi-tech/logfang/internal/load"
	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/pipeline"
	"github.com/Sumatoshi-tech/logfang/internal/registry"
	"github.com/Sumatoshi-tech/logfang/internal/transform"
	"github.com/Sumatoshi-tech/logfang/internal/trigger"
)

// ErrRunFailed indicates the pipeline run ended with FAILED status.
var ErrRunFailed = errors.New("pipeline run failed")

// RunCommand holds flags for the pipeline run command.
type RunCommand struct {
	configPath string
	hours      int
	streamID   string
	message    string
	verbose    bool
}

// NewRunCommand creates the pipeline execution command.
func NewRunCommand() *cobra.Command {
	rc := &RunCommand{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL pipeline",
		Long: `Run the ETL pipeline over all enabled streams, a lookback window,
or a single stream. --message accepts a JSON run request validated against
the invocation schema.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file path (default: search .logfang.yaml)")
	cmd.Flags().IntVar(&rc.hours, "incremental", 0, "Only process records from the last N hours")
	cmd.Flags().StringVar(&rc.streamID, "stream", "", "Process a single stream id (dataset.table)")
	cmd.Flags().StringVar(&rc.message, "message", "", "JSON run request (overrides --incremental and --stream)")
	cmd.Flags().BoolVarP(&rc.verbose, "verbose", "v", false, "Log per-page progress")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := newLogger(rc.verbose)

	cfg, err := loadConfig(rc.configPath)
	if err != nil {
		return err
	}

	request, requestErr := rc.resolveRequest()
	if requestErr != nil {
		return requestErr
	}

	flushTelemetry, telemetryErr := initTelemetry(ctx, cfg, "logfang-pipeline", logger)
	if telemetryErr != nil {
		return telemetryErr
	}
	defer flushTelemetry()

	pool, poolErr := openWarehouse(ctx, cfg)
	if poolErr != nil {
		return poolErr
	}
	defer pool.Close()

	loader := load.New(pool, logger)

	schemaErr := loader.EnsureSchema(ctx)
	if schemaErr != nil {
		return schemaErr
	}

	var transformer transform.Transformer
	if cfg.Pipeline.EnableAIEnrichment || request.EnableAI {
		transformer = transform.NewLLMEnricher(cfg.Enrichment.Endpoint, cfg.Enrichment.Model, logger)
	}

	progress := func(streamID string, counts logmodel.StreamCounts) {
		logger.Debug("page processed",
			"stream", streamID,
			"extracted", counts.Extracted,
			"loaded", counts.Loaded)
	}

	pipe := pipeline.New(
		registry.New(pool, logger),
		extract.New(pool, logger),
		transformer,
		loader,
		jobstore.New(pool, logger),
		progress,
		logger,
	)

	result, runErr := rc.execute(ctx, pipe, pipelineConfig(cfg, request), request)
	if result != nil {
		printResult(result)
	}

	if runErr != nil {
		return runErr
	}

	if result.Status == logmodel.StatusFailed {
		return ErrRunFailed
	}

	return nil
}

// resolveRequest merges --message with the plain flags. The message wins
// when both are given.
func (rc *RunCommand) resolveRequest() (trigger.Request, error) {
	if rc.message != "" {
		return trigger.Parse([]byte(rc.message))
	}

	request := trigger.Request{JobType: trigger.JobTypeFull}

	if rc.hours > 0 {
		request.JobType = trigger.JobTypeIncremental
		request.Hours = rc.hours
	}

	if rc.streamID != "" {
		request.JobType = trigger.JobTypeStream
		request.StreamID = rc.streamID
	}

	return request, nil
}

func (rc *RunCommand) execute(ctx context.Context, pipe *pipeline.Pipeline, cfg pipeline.Config, request trigger.Request) (*logmodel.PipelineResult, error) {
	switch request.JobType {
	case trigger.JobTypeIncremental:
		return pipe.RunIncremental(ctx, cfg, request.Hours)
	case trigger.JobTypeStream:
		return pipe.RunSingleStream(ctx, cfg, request.StreamID)
	default:
		return pipe.Run(ctx, cfg)
	}
}

// pipelineConfig maps file configuration plus request overrides onto the
// pipeline knobs.
func pipelineConfig(cfg *config.Config, request trigger.Request) pipeline.Config {
	out := pipeline.Config{
		BatchSize:              cfg.Pipeline.BatchSize,
		MaxBatchesPerStream:    cfg.Pipeline.MaxBatchesPerStream,
		HoursLookback:          cfg.Pipeline.HoursLookback,
		EnableAIEnrichment:     cfg.Pipeline.EnableAIEnrichment || request.EnableAI,
		LoadBatchSize:          cfg.Pipeline.LoadBatchSize,
		ParallelStreams:        cfg.Pipeline.ParallelStreams,
		ContinueOnError:        cfg.Pipeline.ContinueOnError,
		CleanupSourceAfterDays: cfg.Pipeline.CleanupSourceAfterDays,
		CleanupApply:           cfg.Pipeline.CleanupApply,
	}

	if request.BatchSize > 0 {
		out.BatchSize = int64(request.BatchSize)
	}

	return out
}

func printResult(result *logmodel.PipelineResult) {
	statusColor := color.New(color.FgGreen)

	switch result.Status {
	case logmodel.StatusFailed:
		statusColor = color.New(color.FgRed)
	case logmodel.StatusPartial:
		statusColor = color.New(color.FgYellow)
	}

	statusColor.Fprintf(os.Stdout, "%s", result.Status)
	fmt.Fprintf(os.Stdout, " pipeline=%s streams=%d extracted=%d loaded=%d duration=%s\n",
		result.PipelineID,
		result.StreamsProcessed,
		result.TotalExtracted,
		result.TotalLoaded,
		result.CompletedAt.Sub(result.StartedAt).Round(timeRound))

	for _, msg := range result.Errors {
		color.New(color.FgRed).Fprintf(os.Stdout, "  error: %s\n", msg)
	}
}
