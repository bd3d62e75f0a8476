package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/logfang/internal/jobstore"
)

func TestRender(t *testing.T) {
	t.Parallel()

	data := Data{
		Jobs: []jobstore.Record{
			{
				JobID:      "job-2",
				Status:     "COMPLETED",
				StartedAt:  time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
				Loaded:     900,
				DurationMS: 4200,
			},
			{
				JobID:      "job-1",
				Status:     "PARTIAL",
				StartedAt:  time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC),
				Loaded:     500,
				Failed:     20,
				DurationMS: 6100,
			},
		},
		EmbedLatency:  []float64{120, 180, 95},
		UpsertLatency: []float64{30, 45},
		QueueDepths:   map[string]int64{"priority": 0, "backlog": 12, "failed": 1},
	}

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, data))

	html := buf.String()

	assert.Contains(t, html, "logfang status")
	assert.Contains(t, html, "Rows loaded per run")
	assert.Contains(t, html, "Run duration (ms)")
	assert.Contains(t, html, "Embedding latency (ms)")
	assert.Contains(t, html, "Queue depths")
	assert.Contains(t, html, "backlog")
}

func TestRender_EmptyData(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, Render(&buf, Data{}))
	assert.NotEmpty(t, buf.String())
}
