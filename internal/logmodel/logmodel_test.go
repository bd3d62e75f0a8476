package logmodel

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		table string
		want  Direction
	}{
		{"audit_activity", DirectionInternal},
		{"requests_frontend", DirectionInbound},
		{"sink_error_export", DirectionOutbound},
		{"run_stdout", DirectionInternal},
		{"syslog", DirectionInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyDirection(tt.table), tt.table)
	}
}

func TestClassifyFlow(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FlowRealtime, ClassifyFlow("run_stdout"))
	assert.Equal(t, FlowRealtime, ClassifyFlow("job_stderr"))
	assert.Equal(t, FlowBatch, ClassifyFlow("audit_activity"))
}

func TestSeverityLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		severity string
		want     int
	}{
		{SeverityDefault, 0},
		{SeverityDebug, 100},
		{SeverityInfo, 200},
		{SeverityNotice, 300},
		{SeverityWarning, 400},
		{SeverityError, 500},
		{SeverityCritical, 600},
		{SeverityAlert, 700},
		{SeverityEmergency, 800},
		{"BOGUS", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SeverityLevel(tt.severity), tt.severity)
	}
}

func TestFinalize_DerivedFlags(t *testing.T) {
	t.Parallel()

	c := CanonicalLog{
		Severity:       SeverityError,
		SeverityLevel:  500,
		SourceTable:    "audit_requests",
		ServiceName:    "checkout",
		TraceID:        "abc123",
		EventTimestamp: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
	}

	c.Finalize()

	assert.True(t, c.IsError)
	assert.True(t, c.IsAudit)
	assert.True(t, c.IsRequest)
	assert.True(t, c.HasTrace)
	assert.Equal(t, "2026-03-14", c.LogDate)
	assert.Equal(t, "ERROR:checkout", c.ClusterKey)
}

func TestFinalize_ErrorThreshold(t *testing.T) {
	t.Parallel()

	c := CanonicalLog{Severity: SeverityWarning, SeverityLevel: 400}
	c.Finalize()
	assert.False(t, c.IsError)

	c = CanonicalLog{Severity: SeverityError, SeverityLevel: 500}
	c.Finalize()
	assert.True(t, c.IsError)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc", Truncate("abcdef", 3))

	// Multi-byte runes are never split.
	s := Truncate("aé", 2)
	assert.Equal(t, "a", s)

	// Invalid bytes before the limit stay in place; the field is bounded,
	// not discarded.
	garbled := "\xff" + strings.Repeat("a", 20)
	assert.Equal(t, garbled[:10], Truncate(garbled, 10))

	// An invalid tail costs at most a rune's worth of bytes.
	tail := strings.Repeat("a", 8) + "\xff\xff\xff\xff"
	assert.Equal(t, strings.Repeat("a", 8), Truncate(tail, 11))
}

func TestPointID_Stable(t *testing.T) {
	t.Parallel()

	a := PointID("log-1", 0)
	b := PointID("log-1", 0)
	c := PointID("log-1", 1)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestClampBatchSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, ClampBatchSize(0))
	assert.Equal(t, 1, ClampBatchSize(-5))
	assert.Equal(t, 500, ClampBatchSize(500))
	assert.Equal(t, 1000, ClampBatchSize(5000))
}

func TestRecordError_Bounded(t *testing.T) {
	t.Parallel()

	var r PipelineResult
	for range MaxRecordedErrors + 10 {
		r.RecordError("boom")
	}

	assert.Len(t, r.Errors, MaxRecordedErrors)
}

func TestAddStreamCounts(t *testing.T) {
	t.Parallel()

	var r PipelineResult

	r.AddStreamCounts("ds.t1", StreamCounts{Extracted: 10, Normalized: 10, Transformed: 10, Loaded: 9, Failed: 1})
	r.AddStreamCounts("ds.t1", StreamCounts{Extracted: 5, Normalized: 5, Transformed: 5, Loaded: 5})

	assert.Equal(t, int64(15), r.TotalExtracted)
	assert.Equal(t, int64(14), r.TotalLoaded)
	assert.Equal(t, int64(15), r.StreamResults["ds.t1"].Extracted)
	assert.Equal(t, int64(1), r.StreamResults["ds.t1"].Failed)
}
