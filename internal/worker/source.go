package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/normalize"
)

// Source yields the canonical rows a job refers to. The job's table field is
// a stream id; offset/limit select the page.
type Source interface {
	Fetch(ctx context.Context, table string, offset int64, limit int) ([]*logmodel.CanonicalLog, error)
}

// masterDB is the pool subset MasterSource uses.
type masterDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// MasterSource reads already-loaded canonical rows from the master table.
type MasterSource struct {
	db masterDB
}

// NewMasterSource creates a Source over the master table.
func NewMasterSource(pool masterDB) *MasterSource {
	return &MasterSource{db: pool}
}

// Fetch reads one page of canonical records for a stream, newest first.
func (s *MasterSource) Fetch(ctx context.Context, table string, offset int64, limit int) ([]*logmodel.CanonicalLog, error) {
	rows, err := s.db.Query(ctx,
		`SELECT record FROM central_logging_v1.master_logs
		 WHERE stream_id = $1
		 ORDER BY event_timestamp DESC
		 LIMIT $2 OFFSET $3`,
		table, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch master rows %s: %w", table, err)
	}

	defer rows.Close()

	var logs []*logmodel.CanonicalLog

	for rows.Next() {
		var record []byte

		scanErr := rows.Scan(&record)
		if scanErr != nil {
			return nil, fmt.Errorf("fetch master rows %s: %w", table, scanErr)
		}

		var c logmodel.CanonicalLog

		unmarshalErr := json.Unmarshal(record, &c)
		if unmarshalErr != nil {
			return nil, fmt.Errorf("decode master row %s: %w", table, unmarshalErr)
		}

		logs = append(logs, &c)
	}

	return logs, rows.Err()
}

// streamGetter resolves a stream id to its registered stream.
type streamGetter interface {
	Get(ctx context.Context, streamID string) (logmodel.Stream, error)
}

// rawExtractor reads one raw page from a source table.
type rawExtractor interface {
	Extract(ctx context.Context, stream logmodel.Stream, offset, limit int64, hours int) ([]*logmodel.RawLogRecord, error)
}

// RawSource reads from the original source table and normalizes on the fly,
// for deployments that embed without loading first.
type RawSource struct {
	streams   streamGetter
	extractor rawExtractor
}

// NewRawSource creates a Source over the raw source tables.
func NewRawSource(streams streamGetter, extractor rawExtractor) *RawSource {
	return &RawSource{streams: streams, extractor: extractor}
}

// Fetch extracts and normalizes one page for a stream.
func (s *RawSource) Fetch(ctx context.Context, table string, offset int64, limit int) ([]*logmodel.CanonicalLog, error) {
	stream, err := s.streams.Get(ctx, table)
	if err != nil {
		return nil, err
	}

	page, err := s.extractor.Extract(ctx, stream, offset, int64(limit), 0)
	if err != nil {
		return nil, err
	}

	logs := make([]*logmodel.CanonicalLog, 0, len(page))
	for _, raw := range page {
		logs = append(logs, normalize.Normalize(raw))
	}

	return logs, nil
}
