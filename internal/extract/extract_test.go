package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

func TestSelectColumns(t *testing.T) {
	t.Parallel()

	t.Run("intersection keeps catalog order", func(t *testing.T) {
		t.Parallel()

		selected := SelectColumns([]string{"labels", "timestamp", "severity", "extra_col", "text_payload"})

		assert.Equal(t, []string{"timestamp", "severity", "text_payload", "labels"}, selected)
	})

	t.Run("unknown columns drop out", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, SelectColumns([]string{"id", "created", "body"}))
	})
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	t.Run("window and ordering with timestamp", func(t *testing.T) {
		t.Parallel()

		query, args := BuildQuery("prod_logs", "run_stdout", []string{"timestamp", "severity"}, 200, 100, 24)

		assert.Equal(t,
			`SELECT "timestamp", "severity" FROM "prod_logs"."run_stdout"`+
				` WHERE "timestamp" >= now() - ($1 * interval '1 hour')`+
				` ORDER BY "timestamp" DESC LIMIT $2 OFFSET $3`,
			query)
		assert.Equal(t, []any{24, int64(100), int64(200)}, args)
	})

	t.Run("no window without hours", func(t *testing.T) {
		t.Parallel()

		query, args := BuildQuery("prod_logs", "run_stdout", []string{"timestamp"}, 0, 50, 0)

		assert.NotContains(t, query, "WHERE")
		assert.Contains(t, query, `ORDER BY "timestamp" DESC`)
		assert.Equal(t, []any{int64(50), int64(0)}, args)
	})

	t.Run("no ordering without timestamp column", func(t *testing.T) {
		t.Parallel()

		query, _ := BuildQuery("prod_logs", "flat", []string{"severity"}, 0, 50, 24)

		assert.NotContains(t, query, "ORDER BY")
		assert.NotContains(t, query, "WHERE")
	})
}

func TestMapRow(t *testing.T) {
	t.Parallel()

	stream := logmodel.Stream{
		StreamID:      "prod_logs.run_stdout",
		SourceDataset: "prod_logs",
		SourceTable:   "run_stdout",
	}

	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"insert_id", "timestamp", "severity", "json_payload", "labels", "trace_sampled"}
	values := []any{
		"abc-1",
		ts,
		"ERROR",
		map[string]any{"message": "boom"},
		map[string]any{"env": "prod", "count": 3},
		true,
	}

	record := MapRow(stream, columns, values)

	assert.Equal(t, "prod_logs.run_stdout", record.StreamID)
	require.NotNil(t, record.InsertID)
	assert.Equal(t, "abc-1", *record.InsertID)
	require.NotNil(t, record.Timestamp)
	assert.Equal(t, ts, *record.Timestamp)
	assert.Equal(t, "ERROR", logmodel.Str(record.Severity))
	assert.Equal(t, map[string]any{"message": "boom"}, record.JSONPayload)
	// Non-string label values are dropped.
	assert.Equal(t, map[string]string{"env": "prod"}, record.Labels)
	require.NotNil(t, record.TraceSampled)
	assert.True(t, *record.TraceSampled)
}

func TestMapRow_NullsStayNil(t *testing.T) {
	t.Parallel()

	stream := logmodel.Stream{StreamID: "d.t", SourceDataset: "d", SourceTable: "t"}

	record := MapRow(stream, []string{"insert_id", "timestamp", "severity"}, []any{nil, nil, nil})

	assert.Nil(t, record.InsertID)
	assert.Nil(t, record.Timestamp)
	assert.Nil(t, record.Severity)
}
