// Package worker runs the embedding loop: drain the job queue, fetch
// canonical rows, build trace texts, embed and upsert them, then advance
// the checkpoint and enqueue the next page. The loop is single-threaded
// and cooperative; between sub-batches it yields so shutdown stays prompt.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/logfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/logfang/internal/embed"
	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/queue"
)

// Loop timing defaults.
const (
	DefaultDequeueTimeout = time.Second
	DefaultPollInterval   = time.Second
)

// MaxJobRetries bounds re-enqueues before a job is dead-lettered.
const MaxJobRetries = 3

// jobQueue is the queue subset the worker uses.
type jobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (logmodel.Job, error)
	Enqueue(ctx context.Context, job logmodel.Job) error
	MarkFailed(ctx context.Context, job logmodel.Job, cause string) error
}

// checkpoints is the registry subset the worker uses.
type checkpoints interface {
	Advance(ctx context.Context, streamID string, offset, added int64) error
	BumpGlobal(ctx context.Context, embedded int64, tableCompleted bool) error
	OptimalBatchSizes(ctx context.Context) (checkpoint.BatchSizes, error)
}

// embedder turns one text into one vector.
type embedder interface {
	Embed(ctx context.Context, input string) ([]float32, error)
	VectorSize() int
}

// upserter writes point batches into the vector index.
type upserter interface {
	Upsert(ctx context.Context, points []logmodel.EmbeddingPoint) error
}

// jobMetrics records per-job throughput samples. Optional; nil disables.
type jobMetrics interface {
	RecordJob(ctx context.Context, table string, points int64, status string)
}

// Worker is the embedding loop.
type Worker struct {
	queue       jobQueue
	checkpoints checkpoints
	source      Source
	embedder    embedder
	writer      upserter
	metrics     jobMetrics
	logger      *slog.Logger
	tracer      trace.Tracer

	pollInterval   time.Duration
	dequeueTimeout time.Duration

	running atomic.Bool
}

// New wires a Worker.
func New(q jobQueue, cp checkpoints, source Source, emb embedder, writer upserter, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:          q,
		checkpoints:    cp,
		source:         source,
		embedder:       emb,
		writer:         writer,
		logger:         logger,
		tracer:         otel.Tracer("logfang/worker"),
		pollInterval:   DefaultPollInterval,
		dequeueTimeout: DefaultDequeueTimeout,
	}
}

// SetMetrics attaches throughput instruments to the loop.
func (w *Worker) SetMetrics(m jobMetrics) {
	w.metrics = m
}

// SetIntervals overrides the loop timing. Zero values keep the defaults.
func (w *Worker) SetIntervals(poll, dequeue time.Duration) {
	if poll > 0 {
		w.pollInterval = poll
	}

	if dequeue > 0 {
		w.dequeueTimeout = dequeue
	}
}

// Stop asks the loop to exit after the current job.
func (w *Worker) Stop() {
	w.running.Store(false)
}

// Run drains the queue until Stop is called or ctx is cancelled. An empty
// queue sleeps one poll interval between attempts.
func (w *Worker) Run(ctx context.Context) error {
	w.running.Store(true)

	w.logger.Info("worker started",
		slog.Duration("poll_interval", w.pollInterval),
	)

	for w.running.Load() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := w.queue.Dequeue(ctx, w.dequeueTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			w.sleep(ctx, w.pollInterval)

			continue
		}

		if err != nil {
			w.logger.Error("dequeue failed", slog.String("error", err.Error()))
			w.sleep(ctx, w.pollInterval)

			continue
		}

		w.handle(ctx, job)
	}

	w.logger.Info("worker stopped")

	return nil
}

// RunOnce processes at most one job; used by tests and drain tooling.
func (w *Worker) RunOnce(ctx context.Context) error {
	job, err := w.queue.Dequeue(ctx, w.dequeueTimeout)
	if err != nil {
		return err
	}

	w.handle(ctx, job)

	return nil
}

func (w *Worker) handle(ctx context.Context, job logmodel.Job) {
	ctx, span := w.tracer.Start(ctx, "worker.job",
		trace.WithAttributes(
			attribute.String("job_id", job.JobID),
			attribute.String("table", job.Table),
			attribute.Int64("offset", job.Offset),
		))
	defer span.End()

	points, err := w.process(ctx, job)
	if err == nil {
		w.recordJob(ctx, job.Table, points, "ok")

		return
	}

	w.recordJob(ctx, job.Table, points, "error")
	span.AddEvent("job failed", trace.WithAttributes(attribute.String("error", err.Error())))

	job.RetryCount++

	if job.RetryCount < MaxJobRetries {
		w.logger.Warn("job re-enqueued",
			slog.String("job_id", job.JobID),
			slog.String("table", job.Table),
			slog.Int("retry_count", job.RetryCount),
			slog.String("error", err.Error()),
		)

		enqueueErr := w.queue.Enqueue(ctx, job)
		if enqueueErr != nil {
			w.logger.Error("re-enqueue failed",
				slog.String("job_id", job.JobID),
				slog.String("error", enqueueErr.Error()),
			)
		}

		return
	}

	w.logger.Error("job dead-lettered",
		slog.String("job_id", job.JobID),
		slog.String("table", job.Table),
		slog.String("error", err.Error()),
	)

	failErr := w.queue.MarkFailed(ctx, job, err.Error())
	if failErr != nil {
		w.logger.Error("dead-letter failed",
			slog.String("job_id", job.JobID),
			slog.String("error", failErr.Error()),
		)
	}
}

func (w *Worker) process(ctx context.Context, job logmodel.Job) (int64, error) {
	rows, err := w.source.Fetch(ctx, job.Table, job.Offset, job.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch rows: %w", err)
	}

	if len(rows) == 0 {
		return 0, w.checkpoints.BumpGlobal(ctx, 0, true)
	}

	sizes := w.batchSizes(ctx)

	points, err := w.embedRows(ctx, rows, sizes.Embed)
	if err != nil {
		return 0, err
	}

	err = w.upsertPoints(ctx, points, sizes.Upsert)
	if err != nil {
		return 0, err
	}

	// Checkpoint only after the page's points are durably upserted, so a
	// crash re-embeds into the same point ids.
	fetched := int64(len(rows))

	err = w.checkpoints.Advance(ctx, job.Table, job.Offset+fetched, fetched)
	if err != nil {
		return 0, fmt.Errorf("advance checkpoint: %w", err)
	}

	completed := len(rows) < job.BatchSize

	err = w.checkpoints.BumpGlobal(ctx, int64(len(points)), completed)
	if err != nil {
		return 0, fmt.Errorf("bump global checkpoint: %w", err)
	}

	if !completed {
		next := logmodel.NewJob(job.Table, job.Offset+fetched, job.BatchSize, job.Priority)

		enqueueErr := w.queue.Enqueue(ctx, next)
		if enqueueErr != nil {
			return 0, fmt.Errorf("enqueue next page: %w", enqueueErr)
		}
	}

	w.logger.Info("job done",
		slog.String("table", job.Table),
		slog.Int64("offset", job.Offset),
		slog.Int("rows", len(rows)),
		slog.Int("points", len(points)),
		slog.Bool("completed", completed),
	)

	return int64(len(points)), nil
}

func (w *Worker) recordJob(ctx context.Context, table string, points int64, status string) {
	if w.metrics == nil {
		return
	}

	w.metrics.RecordJob(ctx, table, points, status)
}

func (w *Worker) batchSizes(ctx context.Context) checkpoint.BatchSizes {
	sizes, err := w.checkpoints.OptimalBatchSizes(ctx)
	if err != nil {
		w.logger.Warn("batch sizes unavailable, using defaults",
			slog.String("error", err.Error()))

		return checkpoint.DefaultBatchSizes()
	}

	return sizes
}

// chunkText is one embedding unit: a chunk of a row's trace text.
type chunkText struct {
	log      *logmodel.CanonicalLog
	chunkIdx int
	text     string
}

func (w *Worker) embedRows(ctx context.Context, rows []*logmodel.CanonicalLog, embedBatch int) ([]logmodel.EmbeddingPoint, error) {
	var units []chunkText

	for _, row := range rows {
		text := embed.BuildTraceText(row)

		for idx, chunk := range embed.Chunk(text, embed.DefaultChunkBytes) {
			units = append(units, chunkText{log: row, chunkIdx: idx, text: chunk})
		}
	}

	points := make([]logmodel.EmbeddingPoint, 0, len(units))

	for start := 0; start < len(units); start += embedBatch {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		end := min(start+embedBatch, len(units))

		for _, unit := range units[start:end] {
			vector, err := w.embedder.Embed(ctx, unit.text)
			if err != nil {
				return nil, fmt.Errorf("embed %s: %w", unit.log.LogID, err)
			}

			// Zero vectors mark embedding failures; they are not indexed.
			if isZeroVector(vector) {
				continue
			}

			points = append(points, logmodel.EmbeddingPoint{
				PointID: logmodel.PointID(unit.log.LogID, unit.chunkIdx),
				Vector:  vector,
				Payload: logmodel.PointPayload(unit.log, unit.text, unit.log.SourceFile),
			})
		}

		runtime.Gosched()
	}

	return points, nil
}

func (w *Worker) upsertPoints(ctx context.Context, points []logmodel.EmbeddingPoint, upsertBatch int) error {
	for start := 0; start < len(points); start += upsertBatch {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := min(start+upsertBatch, len(points))

		err := w.writer.Upsert(ctx, points[start:end])
		if err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}

		runtime.Gosched()
	}

	return nil
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func isZeroVector(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return false
		}
	}

	return true
}
