// Package load writes canonical records into the master table. Inserts are
// deduplicated by row id, so retried pages never produce duplicates. Every
// LoadBatch call is bracketed by an etl_jobs row.
package load

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/sql"
)

// DefaultBatchSize is the insert chunk size.
const DefaultBatchSize = 500

const insertLog = `INSERT INTO central_logging_v1.master_logs
	(log_id, insert_id, event_timestamp, ingest_timestamp, severity,
	 severity_level, log_type, source_dataset, source_table, stream_id,
	 service_name, message, message_category, trace_id, pii_risk,
	 retention_class, is_error, is_audit, is_request, has_trace, log_date,
	 cluster_key, record)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
	        $15, $16, $17, $18, $19, $20, $21, $22, $23)
	ON CONFLICT DO NOTHING`

// db is the pool subset the loader uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, batch *pgx.Batch) pgx.BatchResults
}

// Result is the outcome of one LoadBatch call.
type Result struct {
	JobID   string
	Loaded  int64
	Deduped int64
	Failed  int64
}

// Loader writes canonical records and job bookkeeping.
type Loader struct {
	db     db
	logger *slog.Logger
}

// New creates a Loader over an open pool.
func New(pool db, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{db: pool, logger: logger}
}

// EnsureSchema applies the versioned DDL. Every statement is idempotent, so
// the call is safe on every startup.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	statements, err := sql.Statements()
	if err != nil {
		return err
	}

	for _, statement := range statements {
		_, execErr := l.db.Exec(ctx, statement)
		if execErr != nil {
			return fmt.Errorf("apply ddl: %w", execErr)
		}
	}

	return nil
}

// LoadBatch inserts logs in chunks of batchSize under one job row. A chunk
// that fails increments the failed count and loading continues; the stream
// is never aborted by a partial failure.
func (l *Loader) LoadBatch(ctx context.Context, logs []*logmodel.CanonicalLog, streamID string, batchSize int) (Result, error) {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}

	result := Result{JobID: uuid.NewString()}
	started := time.Now().UTC()

	err := l.openJob(ctx, result.JobID, streamID, started)
	if err != nil {
		return result, err
	}

	var errs []string

	for _, chunk := range Chunk(logs, batchSize) {
		loaded, deduped, failed, chunkErr := l.insertChunk(ctx, chunk, started)

		result.Loaded += loaded
		result.Deduped += deduped
		result.Failed += failed

		if chunkErr != nil {
			errs = append(errs, chunkErr.Error())

			l.logger.Warn("load chunk failed",
				slog.String("stream", streamID),
				slog.String("job_id", result.JobID),
				slog.String("error", chunkErr.Error()),
			)
		}
	}

	status := logmodel.StatusCompleted
	if result.Failed > 0 {
		status = logmodel.StatusPartial
	}

	closeErr := l.closeJob(ctx, result.JobID, status, result, started, errs)
	if closeErr != nil {
		return result, closeErr
	}

	return result, nil
}

func (l *Loader) insertChunk(ctx context.Context, chunk []*logmodel.CanonicalLog, ingestTS time.Time) (loaded, deduped, failed int64, err error) {
	batch := &pgx.Batch{}

	for _, c := range chunk {
		if c.IngestTimestamp.IsZero() {
			c.IngestTimestamp = ingestTS
		}

		args, rowErr := RowArgs(c)
		if rowErr != nil {
			failed++

			continue
		}

		batch.Queue(insertLog, args...)
	}

	results := l.db.SendBatch(ctx, batch)
	defer results.Close()

	var firstErr error

	for range batch.Len() {
		tag, execErr := results.Exec()
		if execErr != nil {
			failed++

			if firstErr == nil {
				firstErr = execErr
			}

			continue
		}

		if tag.RowsAffected() == 0 {
			deduped++
		} else {
			loaded += tag.RowsAffected()
		}
	}

	return loaded, deduped, failed, firstErr
}

// RowArgs flattens a canonical record into the insert argument list. The
// full record travels in the jsonb column; the typed columns exist for
// filtering and partitioning.
func RowArgs(c *logmodel.CanonicalLog) ([]any, error) {
	record, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", c.LogID, err)
	}

	var insertID any
	if c.InsertID != "" {
		insertID = c.InsertID
	}

	return []any{
		c.LogID, insertID, c.EventTimestamp.UTC(), c.IngestTimestamp.UTC(),
		c.Severity, c.SeverityLevel, c.LogType, c.SourceDataset,
		c.SourceTable, c.StreamID, c.ServiceName, c.Message,
		c.MessageCategory, c.TraceID, c.PIIRisk, c.RetentionClass,
		c.IsError, c.IsAudit, c.IsRequest, c.HasTrace, c.LogDate,
		c.ClusterKey, record,
	}, nil
}

// Chunk splits logs into insert batches of at most size records.
func Chunk(logs []*logmodel.CanonicalLog, size int) [][]*logmodel.CanonicalLog {
	if len(logs) == 0 {
		return nil
	}

	chunks := make([][]*logmodel.CanonicalLog, 0, (len(logs)+size-1)/size)

	for start := 0; start < len(logs); start += size {
		end := min(start+size, len(logs))
		chunks = append(chunks, logs[start:end])
	}

	return chunks
}

func (l *Loader) openJob(ctx context.Context, jobID, streamID string, started time.Time) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO central_logging_v1.etl_jobs (job_id, stream_id, status, started_at)
		 VALUES ($1, $2, $3, $4)`,
		jobID, streamID, logmodel.StatusRunning, started)
	if err != nil {
		return fmt.Errorf("open job %s: %w", jobID, err)
	}

	return nil
}

func (l *Loader) closeJob(ctx context.Context, jobID, status string, result Result, started time.Time, errs []string) error {
	errsJSON, marshalErr := json.Marshal(errs)
	if marshalErr != nil {
		errsJSON = []byte("[]")
	}

	_, err := l.db.Exec(ctx,
		`UPDATE central_logging_v1.etl_jobs SET
		   status       = $2,
		   completed_at = now(),
		   loaded       = $3,
		   failed       = $4,
		   duration_ms  = $5,
		   errors       = $6
		 WHERE job_id = $1`,
		jobID, status, result.Loaded, result.Failed,
		time.Since(started).Milliseconds(), errsJSON)
	if err != nil {
		return fmt.Errorf("close job %s: %w", jobID, err)
	}

	return nil
}

// CleanupSourceTable deletes source rows older than before. With dryRun
// (the default callers should use) it only reports how many rows a real
// cleanup would remove.
func (l *Loader) CleanupSourceTable(ctx context.Context, dataset, table string, before time.Time, dryRun bool) (int64, error) {
	ident := pgx.Identifier{dataset, table}.Sanitize()

	if dryRun {
		var count int64

		err := l.db.QueryRow(ctx,
			"SELECT count(*) FROM "+ident+` WHERE "timestamp" < $1`, before).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("cleanup dry-run %s.%s: %w", dataset, table, err)
		}

		return count, nil
	}

	tag, err := l.db.Exec(ctx,
		"DELETE FROM "+ident+` WHERE "timestamp" < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("cleanup %s.%s: %w", dataset, table, err)
	}

	l.logger.Info("source table cleaned",
		slog.String("dataset", dataset),
		slog.String("table", table),
		slog.Int64("deleted", tag.RowsAffected()),
	)

	return tag.RowsAffected(), nil
}
