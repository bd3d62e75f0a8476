package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/logfang/internal/load"
	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

type fakeStreams struct {
	mu      sync.Mutex
	streams []logmodel.Stream
	offsets map[string]int64
}

func newFakeStreams(streams ...logmodel.Stream) *fakeStreams {
	return &fakeStreams{streams: streams, offsets: make(map[string]int64)}
}

func (f *fakeStreams) List(_ context.Context, _ bool) ([]logmodel.Stream, error) {
	return f.streams, nil
}

func (f *fakeStreams) Get(_ context.Context, streamID string) (logmodel.Stream, error) {
	for _, s := range f.streams {
		if s.StreamID == streamID {
			return s, nil
		}
	}

	return logmodel.Stream{}, errors.New("stream not found")
}

func (f *fakeStreams) UpdateSyncState(_ context.Context, streamID string, newOffset, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if newOffset > f.offsets[streamID] {
		f.offsets[streamID] = newOffset
	}

	return nil
}

// fakeExtractor serves pages from a per-stream row count.
type fakeExtractor struct {
	rows    map[string]int64
	failing map[string]error
}

func (f *fakeExtractor) Extract(_ context.Context, stream logmodel.Stream, offset, limit int64, _ int) ([]*logmodel.RawLogRecord, error) {
	if err, ok := f.failing[stream.StreamID]; ok {
		return nil, err
	}

	total := f.rows[stream.StreamID]
	if offset >= total {
		return nil, nil
	}

	n := min(limit, total-offset)

	page := make([]*logmodel.RawLogRecord, 0, n)

	for i := range n {
		ts := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		sev := "INFO"
		text := fmt.Sprintf("row %d", offset+i)
		page = append(page, &logmodel.RawLogRecord{
			StreamID:      stream.StreamID,
			SourceDataset: stream.SourceDataset,
			SourceTable:   stream.SourceTable,
			Timestamp:     &ts,
			Severity:      &sev,
			TextPayload:   &text,
		})
	}

	return page, nil
}

type fakeLoader struct {
	mu     sync.Mutex
	loaded int64
	fail   bool
}

func (f *fakeLoader) LoadBatch(_ context.Context, logs []*logmodel.CanonicalLog, _ string, _ int) (load.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return load.Result{Failed: int64(len(logs))}, errors.New("warehouse unavailable")
	}

	f.loaded += int64(len(logs))

	return load.Result{Loaded: int64(len(logs))}, nil
}

func (f *fakeLoader) CleanupSourceTable(_ context.Context, _, _ string, _ time.Time, _ bool) (int64, error) {
	return 0, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []*logmodel.PipelineResult
}

func (f *fakeRecorder) RecordRun(_ context.Context, result *logmodel.PipelineResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.results = append(f.results, result)

	return nil
}

func testStream(id string) logmodel.Stream {
	return logmodel.Stream{
		StreamID:      "prod_logs." + id,
		SourceDataset: "prod_logs",
		SourceTable:   id,
		Enabled:       true,
	}
}

func TestPipeline_RunCompletes(t *testing.T) {
	t.Parallel()

	streams := newFakeStreams(testStream("run_stdout"), testStream("run_stderr"))
	ext := &fakeExtractor{rows: map[string]int64{
		"prod_logs.run_stdout": 250,
		"prod_logs.run_stderr": 30,
	}}
	ld := &fakeLoader{}
	recorder := &fakeRecorder{}

	p := New(streams, ext, nil, ld, recorder, nil, nil)

	result, err := p.Run(context.Background(), Config{BatchSize: 100, ParallelStreams: 2})
	require.NoError(t, err)

	assert.Equal(t, logmodel.StatusCompleted, result.Status)
	assert.Equal(t, 2, result.StreamsProcessed)
	assert.Equal(t, int64(280), result.TotalExtracted)
	assert.Equal(t, int64(280), result.TotalLoaded)
	assert.Empty(t, result.Errors)

	// Checkpoints advanced to the end of each stream.
	assert.Equal(t, int64(250), streams.offsets["prod_logs.run_stdout"])
	assert.Equal(t, int64(30), streams.offsets["prod_logs.run_stderr"])

	require.Len(t, recorder.results, 1)
	assert.Equal(t, result.PipelineID, recorder.results[0].PipelineID)
}

func TestPipeline_PartialOnStreamError(t *testing.T) {
	t.Parallel()

	streams := newFakeStreams(testStream("run_stdout"), testStream("audit_activity"))
	ext := &fakeExtractor{
		rows:    map[string]int64{"prod_logs.run_stdout": 50},
		failing: map[string]error{"prod_logs.audit_activity": errors.New("schema drift")},
	}
	ld := &fakeLoader{}

	p := New(streams, ext, nil, ld, nil, nil, nil)

	result, err := p.Run(context.Background(), Config{BatchSize: 100, ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, logmodel.StatusPartial, result.Status)
	assert.Equal(t, int64(50), result.TotalLoaded)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "audit_activity")
}

func TestPipeline_FailedWhenNothingLoads(t *testing.T) {
	t.Parallel()

	streams := newFakeStreams(testStream("run_stdout"))
	ext := &fakeExtractor{rows: map[string]int64{"prod_logs.run_stdout": 10}}
	ld := &fakeLoader{fail: true}

	p := New(streams, ext, nil, ld, nil, nil, nil)

	result, err := p.Run(context.Background(), Config{BatchSize: 100})
	require.NoError(t, err)

	assert.Equal(t, logmodel.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Errors)
}

func TestPipeline_MaxBatchesBoundsAStream(t *testing.T) {
	t.Parallel()

	streams := newFakeStreams(testStream("run_stdout"))
	ext := &fakeExtractor{rows: map[string]int64{"prod_logs.run_stdout": 1000}}
	ld := &fakeLoader{}

	p := New(streams, ext, nil, ld, nil, nil, nil)

	result, err := p.Run(context.Background(), Config{BatchSize: 100, MaxBatchesPerStream: 3})
	require.NoError(t, err)

	assert.Equal(t, int64(300), result.TotalExtracted)
	assert.Equal(t, int64(300), streams.offsets["prod_logs.run_stdout"])
}

func TestPipeline_RunSingleStream(t *testing.T) {
	t.Parallel()

	streams := newFakeStreams(testStream("run_stdout"), testStream("run_stderr"))
	ext := &fakeExtractor{rows: map[string]int64{
		"prod_logs.run_stdout": 40,
		"prod_logs.run_stderr": 40,
	}}
	ld := &fakeLoader{}

	p := New(streams, ext, nil, ld, nil, nil, nil)

	result, err := p.RunSingleStream(context.Background(), Config{BatchSize: 100}, "prod_logs.run_stderr")
	require.NoError(t, err)

	assert.Equal(t, 1, result.StreamsProcessed)
	assert.Equal(t, int64(40), result.TotalLoaded)
	assert.NotContains(t, streams.offsets, "prod_logs.run_stdout")
}

func TestPipeline_ProgressCallback(t *testing.T) {
	t.Parallel()

	streams := newFakeStreams(testStream("run_stdout"))
	ext := &fakeExtractor{rows: map[string]int64{"prod_logs.run_stdout": 250}}
	ld := &fakeLoader{}

	var (
		mu    sync.Mutex
		pages int
	)

	progress := func(_ string, counts logmodel.StreamCounts) {
		mu.Lock()
		defer mu.Unlock()

		pages++

		assert.Positive(t, counts.Extracted)
	}

	p := New(streams, ext, nil, ld, nil, progress, nil)

	_, err := p.Run(context.Background(), Config{BatchSize: 100})
	require.NoError(t, err)

	assert.Equal(t, 3, pages)
}
