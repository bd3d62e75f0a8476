// Package pipeline drives the ETL run: for every selected stream it pages
// the extractor, normalizes and transforms each page, loads it into the
// master table, and advances the stream's sync offset. Streams run in
// parallel up to a limit; each stream has a single writer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/logfang/internal/load"
	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/normalize"
	"github.com/Sumatoshi-tech/logfang/internal/transform"
)

// Config controls one pipeline run.
type Config struct {
	BatchSize           int64
	MaxBatchesPerStream int
	HoursLookback       int
	EnableAIEnrichment  bool
	LoadBatchSize       int
	ParallelStreams     int
	ContinueOnError     bool

	// Source cleanup after a clean run. Days <= 0 disables it; Apply
	// false keeps the cleanup in dry-run.
	CleanupSourceAfterDays int
	CleanupApply           bool
}

// Defaults for zero-valued config fields.
const (
	DefaultBatchSize       = 1000
	DefaultLoadBatchSize   = 500
	DefaultParallelStreams = 4
)

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	if c.LoadBatchSize <= 0 {
		c.LoadBatchSize = DefaultLoadBatchSize
	}

	if c.ParallelStreams <= 0 {
		c.ParallelStreams = DefaultParallelStreams
	}

	return c
}

// Progress is invoked after every loaded page.
type Progress func(streamID string, counts logmodel.StreamCounts)

// streamSource lists streams and advances their sync state.
type streamSource interface {
	List(ctx context.Context, enabledOnly bool) ([]logmodel.Stream, error)
	Get(ctx context.Context, streamID string) (logmodel.Stream, error)
	UpdateSyncState(ctx context.Context, streamID string, newOffset, added int64) error
}

// extractor reads one raw page.
type extractor interface {
	Extract(ctx context.Context, stream logmodel.Stream, offset, limit int64, hours int) ([]*logmodel.RawLogRecord, error)
}

// loader writes canonical pages and cleans up sources.
type loader interface {
	LoadBatch(ctx context.Context, logs []*logmodel.CanonicalLog, streamID string, batchSize int) (load.Result, error)
	CleanupSourceTable(ctx context.Context, dataset, table string, before time.Time, dryRun bool) (int64, error)
}

// runRecorder persists the final pipeline result.
type runRecorder interface {
	RecordRun(ctx context.Context, result *logmodel.PipelineResult) error
}

// Pipeline orchestrates streams end to end.
type Pipeline struct {
	streams     streamSource
	extractor   extractor
	transformer transform.Transformer
	loader      loader
	jobs        runRecorder
	progress    Progress
	logger      *slog.Logger
	tracer      trace.Tracer
}

// New wires a Pipeline. jobs and progress may be nil.
func New(streams streamSource, ext extractor, transformer transform.Transformer, ld loader, jobs runRecorder, progress Progress, logger *slog.Logger) *Pipeline {
	if transformer == nil {
		transformer = &transform.Heuristic{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		streams:     streams,
		extractor:   ext,
		transformer: transformer,
		loader:      ld,
		jobs:        jobs,
		progress:    progress,
		logger:      logger,
		tracer:      otel.Tracer("logfang/pipeline"),
	}
}

// Run processes all enabled streams under cfg.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*logmodel.PipelineResult, error) {
	streams, err := p.streams.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("select streams: %w", err)
	}

	return p.runStreams(ctx, cfg, streams)
}

// RunIncremental processes all enabled streams with a lookback window.
func (p *Pipeline) RunIncremental(ctx context.Context, cfg Config, hours int) (*logmodel.PipelineResult, error) {
	cfg.HoursLookback = hours

	return p.Run(ctx, cfg)
}

// RunSingleStream processes exactly one stream.
func (p *Pipeline) RunSingleStream(ctx context.Context, cfg Config, streamID string) (*logmodel.PipelineResult, error) {
	stream, err := p.streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}

	return p.runStreams(ctx, cfg, []logmodel.Stream{stream})
}

func (p *Pipeline) runStreams(ctx context.Context, cfg Config, streams []logmodel.Stream) (*logmodel.PipelineResult, error) {
	cfg = cfg.withDefaults()

	result := &logmodel.PipelineResult{
		PipelineID: uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Status:     logmodel.StatusRunning,
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("pipeline_id", result.PipelineID),
			attribute.Int("streams", len(streams)),
		))
	defer span.End()

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.ParallelStreams)

	for _, stream := range streams {
		group.Go(func() error {
			counts, streamErr := p.runStream(groupCtx, cfg, stream)

			mu.Lock()
			defer mu.Unlock()

			result.StreamsProcessed++
			result.AddStreamCounts(stream.StreamID, counts)

			if streamErr != nil {
				result.RecordError(fmt.Sprintf("%s: %v", stream.StreamID, streamErr))

				if !cfg.ContinueOnError {
					return streamErr
				}
			}

			return nil
		})
	}

	runErr := group.Wait()

	result.CompletedAt = time.Now().UTC()
	result.Status = finalStatus(result, runErr)

	p.recordRun(ctx, result)
	p.cleanupSources(ctx, cfg, streams, result)

	p.logger.Info("pipeline finished",
		slog.String("pipeline_id", result.PipelineID),
		slog.String("status", result.Status),
		slog.Int("streams", result.StreamsProcessed),
		slog.Int64("loaded", result.TotalLoaded),
		slog.Duration("took", result.CompletedAt.Sub(result.StartedAt)),
	)

	return result, nil
}

func finalStatus(result *logmodel.PipelineResult, runErr error) string {
	switch {
	case runErr != nil && result.TotalLoaded == 0:
		return logmodel.StatusFailed
	case len(result.Errors) > 0:
		return logmodel.StatusPartial
	default:
		return logmodel.StatusCompleted
	}
}

func (p *Pipeline) runStream(ctx context.Context, cfg Config, stream logmodel.Stream) (logmodel.StreamCounts, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.stream",
		trace.WithAttributes(attribute.String("stream_id", stream.StreamID)))
	defer span.End()

	var counts logmodel.StreamCounts

	offset := stream.LastSyncOffset

	for batch := 0; cfg.MaxBatchesPerStream <= 0 || batch < cfg.MaxBatchesPerStream; batch++ {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}

		page, err := p.extractor.Extract(ctx, stream, offset, cfg.BatchSize, cfg.HoursLookback)
		if err != nil {
			return counts, err
		}

		if len(page) == 0 {
			break
		}

		pageCounts, pageErr := p.processPage(ctx, cfg, stream, page)

		counts.Extracted += pageCounts.Extracted
		counts.Normalized += pageCounts.Normalized
		counts.Transformed += pageCounts.Transformed
		counts.Loaded += pageCounts.Loaded
		counts.Failed += pageCounts.Failed

		if pageErr != nil {
			if !cfg.ContinueOnError {
				return counts, pageErr
			}

			p.logger.Warn("page failed, continuing",
				slog.String("stream", stream.StreamID),
				slog.Int64("offset", offset),
				slog.String("error", pageErr.Error()),
			)
		}

		offset += int64(len(page))

		syncErr := p.streams.UpdateSyncState(ctx, stream.StreamID, offset, pageCounts.Loaded)
		if syncErr != nil {
			return counts, syncErr
		}

		if p.progress != nil {
			p.progress(stream.StreamID, pageCounts)
		}

		if int64(len(page)) < cfg.BatchSize {
			break
		}
	}

	return counts, nil
}

func (p *Pipeline) processPage(ctx context.Context, cfg Config, stream logmodel.Stream, page []*logmodel.RawLogRecord) (logmodel.StreamCounts, error) {
	counts := logmodel.StreamCounts{Extracted: int64(len(page))}

	canonical := make([]*logmodel.CanonicalLog, 0, len(page))
	for _, raw := range page {
		canonical = append(canonical, normalize.Normalize(raw))
	}

	counts.Normalized = int64(len(canonical))

	transformErr := p.transformer.Transform(ctx, canonical)
	if transformErr != nil {
		// Enrichment failures downgrade to the heuristic pass.
		for _, c := range canonical {
			transform.ApplyHeuristic(c)
		}

		p.logger.Warn("enrichment degraded",
			slog.String("stream", stream.StreamID),
			slog.String("error", transformErr.Error()),
		)
	}

	counts.Transformed = int64(len(canonical))

	loadResult, loadErr := p.loader.LoadBatch(ctx, canonical, stream.StreamID, cfg.LoadBatchSize)

	counts.Loaded = loadResult.Loaded
	counts.Failed = loadResult.Failed

	if loadErr != nil {
		return counts, fmt.Errorf("load page: %w", loadErr)
	}

	return counts, nil
}

func (p *Pipeline) recordRun(ctx context.Context, result *logmodel.PipelineResult) {
	if p.jobs == nil {
		return
	}

	err := p.jobs.RecordRun(ctx, result)
	if err != nil {
		p.logger.Error("run not recorded",
			slog.String("pipeline_id", result.PipelineID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) cleanupSources(ctx context.Context, cfg Config, streams []logmodel.Stream, result *logmodel.PipelineResult) {
	if cfg.CleanupSourceAfterDays <= 0 || result.Status != logmodel.StatusCompleted {
		return
	}

	before := time.Now().UTC().AddDate(0, 0, -cfg.CleanupSourceAfterDays)

	for _, stream := range streams {
		affected, err := p.loader.CleanupSourceTable(ctx,
			stream.SourceDataset, stream.SourceTable, before, !cfg.CleanupApply)
		if err != nil {
			p.logger.Warn("source cleanup failed",
				slog.String("stream", stream.StreamID),
				slog.String("error", err.Error()),
			)

			continue
		}

		p.logger.Info("source cleanup",
			slog.String("stream", stream.StreamID),
			slog.Bool("dry_run", !cfg.CleanupApply),
			slog.Int64("rows", affected),
		)
	}
}
