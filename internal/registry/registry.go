// Package registry discovers log source tables in the warehouse, classifies
// them into streams, and persists per-stream sync state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// ErrStreamNotFound is returned when a stream id has no registered row.
var ErrStreamNotFound = errors.New("stream not found")

// Schema columns that mark a table as a log source. A candidate table is
// accepted when it carries at least one of them.
var markerColumns = map[string]struct{}{
	"timestamp": {},
	"severity":  {},
	"log_name":  {},
	"logname":   {},
}

// db is the pool subset the registry uses.
type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Registry manages the log_streams table.
type Registry struct {
	db     db
	logger *slog.Logger
}

// New creates a Registry over an open pool.
func New(pool db, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{db: pool, logger: logger}
}

// AcceptTable reports whether a column set marks a log source table.
func AcceptTable(columns []string) bool {
	for _, column := range columns {
		if _, ok := markerColumns[strings.ToLower(column)]; ok {
			return true
		}
	}

	return false
}

// Classify builds the stream for a discovered dataset/table pair.
func Classify(dataset, table string) logmodel.Stream {
	return logmodel.Stream{
		StreamID:      logmodel.StreamID(dataset, table),
		SourceDataset: dataset,
		SourceTable:   table,
		Direction:     logmodel.ClassifyDirection(table),
		Flow:          logmodel.ClassifyFlow(table),
		Enabled:       true,
	}
}

// Discover scans the given datasets (warehouse schemas) for log source
// tables: non-empty tables whose columns include at least one marker column.
// A failing dataset is logged and skipped; it never aborts the scan.
func (r *Registry) Discover(ctx context.Context, datasets []string) ([]logmodel.Stream, error) {
	var streams []logmodel.Stream

	for _, dataset := range datasets {
		found, err := r.discoverDataset(ctx, dataset)
		if err != nil {
			r.logger.Error("dataset discovery failed",
				slog.String("dataset", dataset),
				slog.String("error", err.Error()),
			)

			continue
		}

		streams = append(streams, found...)
	}

	return streams, nil
}

func (r *Registry) discoverDataset(ctx context.Context, dataset string) ([]logmodel.Stream, error) {
	tables, err := r.listTables(ctx, dataset)
	if err != nil {
		return nil, err
	}

	var streams []logmodel.Stream

	for _, table := range tables {
		columns, columnsErr := r.listColumns(ctx, dataset, table)
		if columnsErr != nil {
			return nil, columnsErr
		}

		if !AcceptTable(columns) {
			continue
		}

		empty, emptyErr := r.tableEmpty(ctx, dataset, table)
		if emptyErr != nil {
			return nil, emptyErr
		}

		if empty {
			continue
		}

		streams = append(streams, Classify(dataset, table))
	}

	r.logger.Info("dataset scanned",
		slog.String("dataset", dataset),
		slog.Int("tables", len(tables)),
		slog.Int("streams", len(streams)),
	)

	return streams, nil
}

func (r *Registry) listTables(ctx context.Context, dataset string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, dataset)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", dataset, err)
	}

	return collectStrings(rows)
}

func (r *Registry) listColumns(ctx context.Context, dataset, table string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2`, dataset, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s.%s: %w", dataset, table, err)
	}

	return collectStrings(rows)
}

func (r *Registry) tableEmpty(ctx context.Context, dataset, table string) (bool, error) {
	var exists bool

	ident := pgx.Identifier{dataset, table}.Sanitize()

	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+ident+")").Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe %s.%s: %w", dataset, table, err)
	}

	return !exists, nil
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()

	var out []string

	for rows.Next() {
		var value string

		err := rows.Scan(&value)
		if err != nil {
			return nil, err
		}

		out = append(out, value)
	}

	return out, rows.Err()
}

// Register upserts a stream by id. Classification and flags are updated;
// last_sync_offset and total_records_synced are preserved on conflict.
func (r *Registry) Register(ctx context.Context, stream logmodel.Stream) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO central_logging_v1.log_streams
		   (stream_id, source_dataset, source_table, direction, flow,
		    region, zone, project, org, enabled, priority)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (stream_id) DO UPDATE SET
		   direction  = EXCLUDED.direction,
		   flow       = EXCLUDED.flow,
		   region     = EXCLUDED.region,
		   zone       = EXCLUDED.zone,
		   project    = EXCLUDED.project,
		   org        = EXCLUDED.org,
		   enabled    = EXCLUDED.enabled,
		   priority   = EXCLUDED.priority,
		   updated_at = now()`,
		stream.StreamID, stream.SourceDataset, stream.SourceTable,
		stream.Direction, stream.Flow,
		stream.Coordinates.Region, stream.Coordinates.Zone,
		stream.Coordinates.Project, stream.Coordinates.Org,
		stream.Enabled, stream.Priority)
	if err != nil {
		return fmt.Errorf("register stream %s: %w", stream.StreamID, err)
	}

	return nil
}

// UpdateSyncState advances a stream's offset monotonically and adds to its
// total. A stale offset never moves the checkpoint backward.
func (r *Registry) UpdateSyncState(ctx context.Context, streamID string, newOffset, added int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE central_logging_v1.log_streams SET
		   last_sync_offset     = GREATEST(last_sync_offset, $2),
		   total_records_synced = total_records_synced + $3,
		   updated_at           = now()
		 WHERE stream_id = $1`,
		streamID, newOffset, added)
	if err != nil {
		return fmt.Errorf("update sync state %s: %w", streamID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update sync state %s: %w", streamID, ErrStreamNotFound)
	}

	return nil
}

// SetEnabled flips the disabled flag without touching sync state.
func (r *Registry) SetEnabled(ctx context.Context, streamID string, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE central_logging_v1.log_streams
		 SET enabled = $2, updated_at = now()
		 WHERE stream_id = $1`, streamID, enabled)
	if err != nil {
		return fmt.Errorf("set enabled %s: %w", streamID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set enabled %s: %w", streamID, ErrStreamNotFound)
	}

	return nil
}

// Get returns one registered stream.
func (r *Registry) Get(ctx context.Context, streamID string) (logmodel.Stream, error) {
	row := r.db.QueryRow(ctx, selectStreams+" WHERE stream_id = $1", streamID)

	stream, err := scanStream(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return logmodel.Stream{}, fmt.Errorf("stream %s: %w", streamID, ErrStreamNotFound)
	}

	if err != nil {
		return logmodel.Stream{}, fmt.Errorf("get stream %s: %w", streamID, err)
	}

	return stream, nil
}

// List returns registered streams, optionally only enabled ones, ordered by
// priority then id.
func (r *Registry) List(ctx context.Context, enabledOnly bool) ([]logmodel.Stream, error) {
	query := selectStreams
	if enabledOnly {
		query += " WHERE enabled"
	}

	query += " ORDER BY priority DESC, stream_id"

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}

	defer rows.Close()

	var streams []logmodel.Stream

	for rows.Next() {
		stream, scanErr := scanStream(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("list streams: %w", scanErr)
		}

		streams = append(streams, stream)
	}

	return streams, rows.Err()
}

const selectStreams = `SELECT stream_id, source_dataset, source_table,
	direction, flow, region, zone, project, org, enabled, priority,
	last_sync_offset, total_records_synced, created_at, updated_at
	FROM central_logging_v1.log_streams`

func scanStream(row pgx.Row) (logmodel.Stream, error) {
	var (
		s                    logmodel.Stream
		createdAt, updatedAt time.Time
	)

	err := row.Scan(&s.StreamID, &s.SourceDataset, &s.SourceTable,
		&s.Direction, &s.Flow,
		&s.Coordinates.Region, &s.Coordinates.Zone,
		&s.Coordinates.Project, &s.Coordinates.Org,
		&s.Enabled, &s.Priority,
		&s.LastSyncOffset, &s.TotalRecordsSynced,
		&createdAt, &updatedAt)
	if err != nil {
		return logmodel.Stream{}, err
	}

	s.CreatedAt = createdAt
	s.UpdatedAt = updatedAt

	return s, nil
}
