// Package extract reads pages of raw rows from log source tables. The
// projection is schema-adaptive: only columns the table actually has are
// selected, so heterogeneous sink tables share one extraction path.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// ErrNoKnownColumns is returned when a table shares no columns with the
// catalog.
var ErrNoKnownColumns = errors.New("table has no known log columns")

// db is the pool subset the extractor uses.
type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Extractor reads raw pages from source tables.
type Extractor struct {
	db     db
	logger *slog.Logger
}

// New creates an Extractor over an open pool.
func New(pool db, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{db: pool, logger: logger}
}

// BuildQuery renders the page query for a projection. When hours > 0 and the
// table has a timestamp column, a lookback window filter is added before the
// ordering. Ordering is timestamp DESC whenever the column exists.
func BuildQuery(dataset, table string, columns []string, offset, limit int64, hours int) (string, []any) {
	quoted := make([]string, 0, len(columns))
	for _, column := range columns {
		quoted = append(quoted, pgx.Identifier{column}.Sanitize())
	}

	var b strings.Builder

	b.WriteString("SELECT ")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(" FROM ")
	b.WriteString(pgx.Identifier{dataset, table}.Sanitize())

	args := make([]any, 0, 3)
	hasTimestamp := HasColumn(columns, "timestamp")

	if hours > 0 && hasTimestamp {
		args = append(args, hours)
		fmt.Fprintf(&b, ` WHERE "timestamp" >= now() - ($%d * interval '1 hour')`, len(args))
	}

	if hasTimestamp {
		b.WriteString(` ORDER BY "timestamp" DESC`)
	}

	args = append(args, limit)
	fmt.Fprintf(&b, " LIMIT $%d", len(args))

	args = append(args, offset)
	fmt.Fprintf(&b, " OFFSET $%d", len(args))

	return b.String(), args
}

// Extract reads one page of up to limit rows at offset. hours = 0 disables
// the lookback window.
func (e *Extractor) Extract(ctx context.Context, stream logmodel.Stream, offset, limit int64, hours int) ([]*logmodel.RawLogRecord, error) {
	columns, err := e.tableColumns(ctx, stream)
	if err != nil {
		return nil, err
	}

	selected := SelectColumns(columns)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%s: %w", stream.StreamID, ErrNoKnownColumns)
	}

	query, args := BuildQuery(stream.SourceDataset, stream.SourceTable, selected, offset, limit, hours)

	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", stream.StreamID, err)
	}

	defer rows.Close()

	var records []*logmodel.RawLogRecord

	for rows.Next() {
		values, valuesErr := rows.Values()
		if valuesErr != nil {
			return nil, fmt.Errorf("extract %s: %w", stream.StreamID, valuesErr)
		}

		records = append(records, MapRow(stream, selected, values))
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("extract %s: %w", stream.StreamID, rows.Err())
	}

	return records, nil
}

func (e *Extractor) tableColumns(ctx context.Context, stream logmodel.Stream) ([]string, error) {
	rows, err := e.db.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2`,
		stream.SourceDataset, stream.SourceTable)
	if err != nil {
		return nil, fmt.Errorf("schema of %s: %w", stream.StreamID, err)
	}

	defer rows.Close()

	var columns []string

	for rows.Next() {
		var name string

		scanErr := rows.Scan(&name)
		if scanErr != nil {
			return nil, fmt.Errorf("schema of %s: %w", stream.StreamID, scanErr)
		}

		columns = append(columns, name)
	}

	return columns, rows.Err()
}

// ExtractBatch pages through a stream from startOffset, invoking handle per
// page. Iteration stops on a short page, after maxBatches pages when
// maxBatches > 0, or on the first error. The error is returned for the
// caller's bookkeeping; it is not fatal to other streams.
func (e *Extractor) ExtractBatch(ctx context.Context, stream logmodel.Stream, batchSize int64, maxBatches int, startOffset int64, hours int, handle func(page []*logmodel.RawLogRecord) error) (int64, error) {
	var (
		total  int64
		offset = startOffset
	)

	for batch := 0; maxBatches <= 0 || batch < maxBatches; batch++ {
		page, err := e.Extract(ctx, stream, offset, batchSize, hours)
		if err != nil {
			e.logger.Error("extraction stopped",
				slog.String("stream", stream.StreamID),
				slog.Int64("offset", offset),
				slog.String("error", err.Error()),
			)

			return total, err
		}

		if len(page) == 0 {
			break
		}

		handleErr := handle(page)
		if handleErr != nil {
			return total, handleErr
		}

		total += int64(len(page))
		offset += int64(len(page))

		if int64(len(page)) < batchSize {
			break
		}
	}

	return total, nil
}

// Count returns the total row count of a source table.
func (e *Extractor) Count(ctx context.Context, stream logmodel.Stream) (int64, error) {
	var count int64

	ident := pgx.Identifier{stream.SourceDataset, stream.SourceTable}.Sanitize()

	err := e.db.QueryRow(ctx, "SELECT count(*) FROM "+ident).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", stream.StreamID, err)
	}

	return count, nil
}

// CountSince returns the row count inside the lookback window. Tables
// without a timestamp column fall back to the full count.
func (e *Extractor) CountSince(ctx context.Context, stream logmodel.Stream, hours int) (int64, error) {
	columns, err := e.tableColumns(ctx, stream)
	if err != nil {
		return 0, err
	}

	if !HasColumn(columns, "timestamp") {
		return e.Count(ctx, stream)
	}

	var count int64

	ident := pgx.Identifier{stream.SourceDataset, stream.SourceTable}.Sanitize()

	err = e.db.QueryRow(ctx,
		"SELECT count(*) FROM "+ident+` WHERE "timestamp" >= now() - ($1 * interval '1 hour')`,
		hours).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", stream.StreamID, err)
	}

	return count, nil
}

// MapRow converts one projected row into a RawLogRecord. Unknown value
// shapes are dropped rather than failing the page.
func MapRow(stream logmodel.Stream, columns []string, values []any) *logmodel.RawLogRecord {
	record := &logmodel.RawLogRecord{
		StreamID:      stream.StreamID,
		SourceDataset: stream.SourceDataset,
		SourceTable:   stream.SourceTable,
	}

	for i, column := range columns {
		if i >= len(values) || values[i] == nil {
			continue
		}

		assignColumn(record, column, values[i])
	}

	return record
}

func assignColumn(record *logmodel.RawLogRecord, column string, value any) {
	switch column {
	case "insert_id":
		record.InsertID = stringPtr(value)
	case "timestamp":
		record.Timestamp = timePtr(value)
	case "receive_timestamp":
		record.ReceiveTimestamp = timePtr(value)
	case "severity":
		record.Severity = stringPtr(value)
	case "log_name":
		record.LogName = stringPtr(value)
	case "text_payload":
		record.TextPayload = stringPtr(value)
	case "json_payload":
		record.JSONPayload = objectValue(value)
	case "proto_payload":
		record.ProtoPayload = objectValue(value)
	case "http_request":
		record.HTTPRequest = objectValue(value)
	case "resource":
		record.Resource = objectValue(value)
	case "operation":
		record.Operation = objectValue(value)
	case "source_location":
		record.SourceLocation = objectValue(value)
	case "labels":
		record.Labels = stringMapValue(value)
	case "trace":
		record.Trace = stringPtr(value)
	case "span_id":
		record.SpanID = stringPtr(value)
	case "trace_sampled":
		record.TraceSampled = boolPtr(value)
	}
}

func stringPtr(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}

	return &s
}

func timePtr(value any) *time.Time {
	t, ok := value.(time.Time)
	if !ok {
		return nil
	}

	utc := t.UTC()

	return &utc
}

func boolPtr(value any) *bool {
	b, ok := value.(bool)
	if !ok {
		return nil
	}

	return &b
}

func objectValue(value any) map[string]any {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	return m
}

func stringMapValue(value any) map[string]string {
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(m))

	for key, raw := range m {
		if s, ok := raw.(string); ok {
			out[key] = s
		}
	}

	return out
}
