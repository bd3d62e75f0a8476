package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/logfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/logfang/internal/embed"
	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
	"github.com/Sumatoshi-tech/logfang/internal/queue"
)

func traceTextOf(c *logmodel.CanonicalLog) string {
	return embed.BuildTraceText(c)
}

type fakeQueue struct {
	jobs     []logmodel.Job
	enqueued []logmodel.Job
	failed   []logmodel.Job
	causes   []string
}

func (f *fakeQueue) Dequeue(_ context.Context, _ time.Duration) (logmodel.Job, error) {
	if len(f.jobs) == 0 {
		return logmodel.Job{}, queue.ErrEmpty
	}

	job := f.jobs[0]
	f.jobs = f.jobs[1:]

	return job, nil
}

func (f *fakeQueue) Enqueue(_ context.Context, job logmodel.Job) error {
	f.enqueued = append(f.enqueued, job)

	return nil
}

func (f *fakeQueue) MarkFailed(_ context.Context, job logmodel.Job, cause string) error {
	f.failed = append(f.failed, job)
	f.causes = append(f.causes, cause)

	return nil
}

type fakeCheckpoints struct {
	offsets       map[string]int64
	totalEmbedded int64
	completed     int
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{offsets: make(map[string]int64)}
}

func (f *fakeCheckpoints) Advance(_ context.Context, streamID string, offset, _ int64) error {
	if offset > f.offsets[streamID] {
		f.offsets[streamID] = offset
	}

	return nil
}

func (f *fakeCheckpoints) BumpGlobal(_ context.Context, embedded int64, tableCompleted bool) error {
	f.totalEmbedded += embedded

	if tableCompleted {
		f.completed++
	}

	return nil
}

func (f *fakeCheckpoints) OptimalBatchSizes(_ context.Context) (checkpoint.BatchSizes, error) {
	return checkpoint.DefaultBatchSizes(), nil
}

type fakeSource struct {
	rows map[string]int64
	err  error
}

func (f *fakeSource) Fetch(_ context.Context, table string, offset int64, limit int) ([]*logmodel.CanonicalLog, error) {
	if f.err != nil {
		return nil, f.err
	}

	total := f.rows[table]
	if offset >= total {
		return nil, nil
	}

	n := min(int64(limit), total-offset)

	logs := make([]*logmodel.CanonicalLog, 0, n)

	for i := range n {
		logs = append(logs, &logmodel.CanonicalLog{
			LogID:          fmt.Sprintf("%s-%d", table, offset+i),
			EventTimestamp: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			Severity:       "INFO",
			StreamID:       table,
			Message:        "hello",
		})
	}

	return logs, nil
}

type fakeEmbedder struct {
	zeroFor map[string]bool
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, input string) ([]float32, error) {
	f.calls++

	if f.zeroFor[input] {
		return []float32{0, 0, 0}, nil
	}

	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) VectorSize() int { return 3 }

type jobSample struct {
	table  string
	points int64
	status string
}

type fakeMetrics struct {
	samples []jobSample
}

func (f *fakeMetrics) RecordJob(_ context.Context, table string, points int64, status string) {
	f.samples = append(f.samples, jobSample{table: table, points: points, status: status})
}

type fakeWriter struct {
	points  []logmodel.EmbeddingPoint
	batches int
	err     error
}

func (f *fakeWriter) Upsert(_ context.Context, points []logmodel.EmbeddingPoint) error {
	if f.err != nil {
		return f.err
	}

	f.batches++
	f.points = append(f.points, points...)

	return nil
}

func newTestWorker(q *fakeQueue, cp *fakeCheckpoints, src Source, emb embedder, wr upserter) *Worker {
	w := New(q, cp, src, emb, wr, nil)
	w.pollInterval = time.Millisecond
	w.dequeueTimeout = time.Millisecond

	return w
}

func TestWorker_ProcessesJobAndEnqueuesNextPage(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{jobs: []logmodel.Job{logmodel.NewJob("prod_logs.run_stdout", 0, 25, false)}}
	cp := newFakeCheckpoints()
	src := &fakeSource{rows: map[string]int64{"prod_logs.run_stdout": 60}}
	emb := &fakeEmbedder{}
	wr := &fakeWriter{}

	w := newTestWorker(q, cp, src, emb, wr)

	require.NoError(t, w.RunOnce(context.Background()))

	// Full page: checkpoint advanced and the next page enqueued.
	assert.Equal(t, int64(25), cp.offsets["prod_logs.run_stdout"])
	assert.Equal(t, int64(25), cp.totalEmbedded)
	assert.Zero(t, cp.completed)
	assert.Len(t, wr.points, 25)

	require.Len(t, q.enqueued, 1)
	assert.Equal(t, int64(25), q.enqueued[0].Offset)
	assert.Equal(t, 25, q.enqueued[0].BatchSize)
}

func TestWorker_ShortPageCompletesTable(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{jobs: []logmodel.Job{logmodel.NewJob("prod_logs.run_stdout", 50, 25, false)}}
	cp := newFakeCheckpoints()
	src := &fakeSource{rows: map[string]int64{"prod_logs.run_stdout": 60}}
	emb := &fakeEmbedder{}
	wr := &fakeWriter{}

	w := newTestWorker(q, cp, src, emb, wr)

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Equal(t, int64(60), cp.offsets["prod_logs.run_stdout"])
	assert.Equal(t, 1, cp.completed)
	assert.Empty(t, q.enqueued)
}

func TestWorker_SkipsZeroVectors(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{jobs: []logmodel.Job{logmodel.NewJob("t", 0, 10, false)}}
	cp := newFakeCheckpoints()
	src := &fakeSource{rows: map[string]int64{"t": 3}}
	emb := &fakeEmbedder{zeroFor: map[string]bool{}}
	wr := &fakeWriter{}

	// Mark the second row's trace text as a failed embedding.
	logs, err := src.Fetch(context.Background(), "t", 0, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)

	w := newTestWorker(q, cp, src, emb, wr)

	text := traceTextOf(logs[1])
	emb.zeroFor[text] = true

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Len(t, wr.points, 2)
	// Checkpoint still covers all fetched rows.
	assert.Equal(t, int64(3), cp.offsets["t"])
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	cp := newFakeCheckpoints()
	src := &fakeSource{err: errors.New("warehouse down")}
	emb := &fakeEmbedder{}
	wr := &fakeWriter{}

	job := logmodel.NewJob("t", 0, 10, false)

	t.Run("below limit re-enqueues", func(t *testing.T) {
		t.Parallel()

		q := &fakeQueue{jobs: []logmodel.Job{job}}
		w := newTestWorker(q, cp, src, emb, wr)

		require.NoError(t, w.RunOnce(context.Background()))

		require.Len(t, q.enqueued, 1)
		assert.Equal(t, 1, q.enqueued[0].RetryCount)
		assert.Empty(t, q.failed)
	})

	t.Run("at limit dead-letters", func(t *testing.T) {
		t.Parallel()

		exhausted := job
		exhausted.RetryCount = MaxJobRetries - 1

		q := &fakeQueue{jobs: []logmodel.Job{exhausted}}
		w := newTestWorker(q, cp, src, emb, wr)

		require.NoError(t, w.RunOnce(context.Background()))

		assert.Empty(t, q.enqueued)
		require.Len(t, q.failed, 1)
		assert.Contains(t, q.causes[0], "warehouse down")
	})
}

func TestWorker_StopExitsLoop(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	cp := newFakeCheckpoints()
	src := &fakeSource{}
	emb := &fakeEmbedder{}
	wr := &fakeWriter{}

	w := newTestWorker(q, cp, src, emb, wr)

	done := make(chan error, 1)

	go func() {
		done <- w.Run(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_RecordsJobMetrics(t *testing.T) {
	t.Parallel()

	t.Run("success records point count", func(t *testing.T) {
		t.Parallel()

		q := &fakeQueue{jobs: []logmodel.Job{logmodel.NewJob("t", 0, 10, false)}}
		cp := newFakeCheckpoints()
		src := &fakeSource{rows: map[string]int64{"t": 4}}
		m := &fakeMetrics{}

		w := newTestWorker(q, cp, src, &fakeEmbedder{}, &fakeWriter{})
		w.SetMetrics(m)

		require.NoError(t, w.RunOnce(context.Background()))

		require.Len(t, m.samples, 1)
		assert.Equal(t, jobSample{table: "t", points: 4, status: "ok"}, m.samples[0])
	})

	t.Run("failure records error status", func(t *testing.T) {
		t.Parallel()

		q := &fakeQueue{jobs: []logmodel.Job{logmodel.NewJob("t", 0, 10, false)}}
		cp := newFakeCheckpoints()
		src := &fakeSource{err: errors.New("warehouse down")}
		m := &fakeMetrics{}

		w := newTestWorker(q, cp, src, &fakeEmbedder{}, &fakeWriter{})
		w.SetMetrics(m)

		require.NoError(t, w.RunOnce(context.Background()))

		require.Len(t, m.samples, 1)
		assert.Equal(t, jobSample{table: "t", points: 0, status: "error"}, m.samples[0])
	})
}

func TestWorker_PointIDsStableAcrossRuns(t *testing.T) {
	t.Parallel()

	cp := newFakeCheckpoints()
	src := &fakeSource{rows: map[string]int64{"t": 5}}
	emb := &fakeEmbedder{}

	first := &fakeWriter{}
	q1 := &fakeQueue{jobs: []logmodel.Job{logmodel.NewJob("t", 0, 10, false)}}
	require.NoError(t, newTestWorker(q1, cp, src, emb, first).RunOnce(context.Background()))

	second := &fakeWriter{}
	q2 := &fakeQueue{jobs: []logmodel.Job{logmodel.NewJob("t", 0, 10, false)}}
	require.NoError(t, newTestWorker(q2, cp, src, emb, second).RunOnce(context.Background()))

	require.Len(t, second.points, len(first.points))

	for i := range first.points {
		assert.Equal(t, first.points[i].PointID, second.points[i].PointID)
	}
}
