// Package jobstore records pipeline runs in etl_jobs and answers the status
// queries behind the CLI. Failed runs open a row in etl_alerts.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// ErrJobNotFound is returned when a job id has no recorded row.
var ErrJobNotFound = errors.New("job not found")

// db is the pool subset the store uses.
type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Record is one etl_jobs row.
type Record struct {
	JobID       string     `json:"job_id"`
	PipelineID  string     `json:"pipeline_id,omitempty"`
	StreamID    string     `json:"stream_id,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Extracted   int64      `json:"extracted"`
	Normalized  int64      `json:"normalized"`
	Transformed int64      `json:"transformed"`
	Loaded      int64      `json:"loaded"`
	Failed      int64      `json:"failed"`
	DurationMS  int64      `json:"duration_ms"`
	Errors      []string   `json:"errors,omitempty"`
}

// Alert is one open etl_alerts row.
type Alert struct {
	AlertID   int64     `json:"alert_id"`
	JobID     string    `json:"job_id"`
	StreamID  string    `json:"stream_id,omitempty"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates runs over a rolling window. Duration percentiles are
// computed client-side over the recorded samples.
type Summary struct {
	Runs          int64   `json:"runs"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	TotalLoaded   int64   `json:"total_loaded"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	P50DurationMS int64   `json:"p50_duration_ms"`
	P95DurationMS int64   `json:"p95_duration_ms"`
}

// Store reads and writes etl_jobs and etl_alerts.
type Store struct {
	db     db
	logger *slog.Logger
}

// New creates a Store over an open pool.
func New(pool db, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{db: pool, logger: logger}
}

// RecordRun persists a pipeline run under its pipeline id. A FAILED run also
// opens an alert.
func (s *Store) RecordRun(ctx context.Context, result *logmodel.PipelineResult) error {
	errsJSON, err := json.Marshal(result.Errors)
	if err != nil {
		errsJSON = []byte("[]")
	}

	metricsJSON, err := json.Marshal(result.StreamResults)
	if err != nil {
		metricsJSON = []byte("{}")
	}

	var completedAt any
	if !result.CompletedAt.IsZero() {
		completedAt = result.CompletedAt.UTC()
	}

	durationMS := int64(0)
	if !result.CompletedAt.IsZero() {
		durationMS = result.CompletedAt.Sub(result.StartedAt).Milliseconds()
	}

	_, execErr := s.db.Exec(ctx,
		`INSERT INTO central_logging_v1.etl_jobs
		   (job_id, pipeline_id, status, started_at, completed_at,
		    extracted, normalized, transformed, loaded, duration_ms,
		    errors, metrics)
		 VALUES ($1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (job_id) DO UPDATE SET
		   status       = EXCLUDED.status,
		   completed_at = EXCLUDED.completed_at,
		   extracted    = EXCLUDED.extracted,
		   normalized   = EXCLUDED.normalized,
		   transformed  = EXCLUDED.transformed,
		   loaded       = EXCLUDED.loaded,
		   duration_ms  = EXCLUDED.duration_ms,
		   errors       = EXCLUDED.errors,
		   metrics      = EXCLUDED.metrics`,
		result.PipelineID, result.Status, result.StartedAt.UTC(), completedAt,
		result.TotalExtracted, result.TotalNormalized,
		result.TotalTransformed, result.TotalLoaded, durationMS,
		errsJSON, metricsJSON)
	if execErr != nil {
		return fmt.Errorf("record run %s: %w", result.PipelineID, execErr)
	}

	if result.Status == logmodel.StatusFailed {
		message := "pipeline run failed"
		if len(result.Errors) > 0 {
			message = result.Errors[0]
		}

		alertErr := s.OpenAlert(ctx, result.PipelineID, "", message)
		if alertErr != nil {
			s.logger.Error("alert not opened",
				slog.String("pipeline_id", result.PipelineID),
				slog.String("error", alertErr.Error()),
			)
		}
	}

	return nil
}

const selectJobs = `SELECT job_id, pipeline_id, stream_id, status,
	started_at, completed_at, extracted, normalized, transformed, loaded,
	failed, duration_ms, errors
	FROM central_logging_v1.etl_jobs`

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx, selectJobs+" ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("recent jobs: %w", err)
	}

	return collectRecords(rows)
}

// Running returns jobs still in RUNNING state.
func (s *Store) Running(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		selectJobs+" WHERE status = $1 ORDER BY started_at DESC",
		logmodel.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("running jobs: %w", err)
	}

	return collectRecords(rows)
}

// Job returns one run by id.
func (s *Store) Job(ctx context.Context, jobID string) (Record, error) {
	record, err := scanRecord(s.db.QueryRow(ctx, selectJobs+" WHERE job_id = $1", jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	if err != nil {
		return Record{}, fmt.Errorf("job %s: %w", jobID, err)
	}

	return record, nil
}

// Summarize aggregates completed runs inside the rolling window.
func (s *Store) Summarize(ctx context.Context, window time.Duration) (Summary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT status, loaded, duration_ms FROM central_logging_v1.etl_jobs
		 WHERE started_at >= $1`,
		time.Now().UTC().Add(-window))
	if err != nil {
		return Summary{}, fmt.Errorf("summarize jobs: %w", err)
	}

	defer rows.Close()

	var (
		summary   Summary
		durations []int64
		totalMS   int64
	)

	for rows.Next() {
		var (
			status     string
			loaded     int64
			durationMS int64
		)

		scanErr := rows.Scan(&status, &loaded, &durationMS)
		if scanErr != nil {
			return Summary{}, fmt.Errorf("summarize jobs: %w", scanErr)
		}

		summary.Runs++
		summary.TotalLoaded += loaded

		switch status {
		case logmodel.StatusFailed:
			summary.Failed++
		case logmodel.StatusCompleted, logmodel.StatusPartial:
			summary.Succeeded++
		}

		if durationMS > 0 {
			durations = append(durations, durationMS)
			totalMS += durationMS
		}
	}

	if rows.Err() != nil {
		return Summary{}, fmt.Errorf("summarize jobs: %w", rows.Err())
	}

	if summary.Runs > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(summary.Runs)
	}

	if len(durations) > 0 {
		summary.AvgDurationMS = float64(totalMS) / float64(len(durations))
		summary.P50DurationMS = Percentile(durations, 50)
		summary.P95DurationMS = Percentile(durations, 95)
	}

	return summary, nil
}

// Percentile returns the nearest-rank percentile of the samples.
func Percentile(samples []int64, p int) int64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}

	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}

	return sorted[rank]
}

// OpenAlert inserts an etl_alerts row.
func (s *Store) OpenAlert(ctx context.Context, jobID, streamID, message string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO central_logging_v1.etl_alerts (job_id, stream_id, message)
		 VALUES ($1, $2, $3)`,
		jobID, streamID, message)
	if err != nil {
		return fmt.Errorf("open alert for %s: %w", jobID, err)
	}

	return nil
}

// OpenAlerts returns unacknowledged alerts, newest first.
func (s *Store) OpenAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.db.Query(ctx,
		`SELECT alert_id, job_id, stream_id, severity, message, created_at
		 FROM central_logging_v1.etl_alerts
		 WHERE NOT acknowledged
		 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("open alerts: %w", err)
	}

	defer rows.Close()

	var alerts []Alert

	for rows.Next() {
		var alert Alert

		scanErr := rows.Scan(&alert.AlertID, &alert.JobID, &alert.StreamID,
			&alert.Severity, &alert.Message, &alert.CreatedAt)
		if scanErr != nil {
			return nil, fmt.Errorf("open alerts: %w", scanErr)
		}

		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// Acknowledge closes an alert.
func (s *Store) Acknowledge(ctx context.Context, alertID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE central_logging_v1.etl_alerts SET acknowledged = TRUE
		 WHERE alert_id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("acknowledge alert %d: %w", alertID, err)
	}

	return nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var records []Record

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		record   Record
		errsJSON []byte
	)

	err := row.Scan(&record.JobID, &record.PipelineID, &record.StreamID,
		&record.Status, &record.StartedAt, &record.CompletedAt,
		&record.Extracted, &record.Normalized, &record.Transformed,
		&record.Loaded, &record.Failed, &record.DurationMS, &errsJSON)
	if err != nil {
		return Record{}, err
	}

	if len(errsJSON) > 0 {
		_ = json.Unmarshal(errsJSON, &record.Errors)
	}

	return record, nil
}
