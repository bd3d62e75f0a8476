package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// fakeQdrant implements the api subset in memory.
type fakeQdrant struct {
	collections map[string]uint64
	indexes     map[string][]string
	upserts     map[string][]*qdrant.PointStruct
	upsertFails int
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{
		collections: make(map[string]uint64),
		indexes:     make(map[string][]string),
		upserts:     make(map[string][]*qdrant.PointStruct),
	}
}

func (f *fakeQdrant) CollectionExists(_ context.Context, name string) (bool, error) {
	_, ok := f.collections[name]

	return ok, nil
}

func (f *fakeQdrant) GetCollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	dim, ok := f.collections[name]
	if !ok {
		return nil, errors.New("not found")
	}

	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     dim,
					Distance: qdrant.Distance_Cosine,
				}),
			},
		},
	}, nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.collections[req.GetCollectionName()] = req.GetVectorsConfig().GetParams().GetSize()

	return nil
}

func (f *fakeQdrant) CreateFieldIndex(_ context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	name := req.GetCollectionName()
	f.indexes[name] = append(f.indexes[name], req.GetFieldName())

	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	if f.upsertFails > 0 {
		f.upsertFails--

		return nil, errors.New("transient upsert failure")
	}

	name := req.GetCollectionName()
	f.upserts[name] = append(f.upserts[name], req.GetPoints()...)

	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Query(_ context.Context, _ *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	return nil, nil
}

func testPoints(n int) []logmodel.EmbeddingPoint {
	points := make([]logmodel.EmbeddingPoint, 0, n)

	for i := range n {
		points = append(points, logmodel.EmbeddingPoint{
			PointID: logmodel.PointID("log", i),
			Vector:  []float32{1, 2, 3},
			Payload: map[string]any{"severity": "INFO"},
		})
	}

	return points
}

func TestWriter_EnsureCreatesCollectionWithIndexes(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	w := NewWriter(fake, "logs_embedded", 768, nil, nil)

	require.NoError(t, w.Ensure(context.Background()))

	assert.Equal(t, "logs_embedded", w.Collection())
	assert.Equal(t, uint64(768), fake.collections["logs_embedded"])
	assert.ElementsMatch(t,
		append(append([]string{}, keywordIndexFields...), integerIndexFields...),
		fake.indexes["logs_embedded"],
	)
}

func TestWriter_DimensionAutoSwitch(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.collections["logs_embedded"] = 768

	w := NewWriter(fake, "logs_embedded", 1024, nil, nil)
	require.NoError(t, w.Ensure(context.Background()))

	assert.Equal(t, "logs_embedded_qwen3", w.Collection())
	// The original collection keeps its dimension untouched.
	assert.Equal(t, uint64(768), fake.collections["logs_embedded"])
	assert.Equal(t, uint64(1024), fake.collections["logs_embedded_qwen3"])

	require.NoError(t, w.Upsert(context.Background(), testPoints(2)))
	assert.Len(t, fake.upserts["logs_embedded_qwen3"], 2)
	assert.Empty(t, fake.upserts["logs_embedded"])
}

func TestCollectionNameForDim(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "logs_embedded_qwen3", CollectionNameForDim("logs_embedded", 1024))
	assert.Equal(t, "logs_embedded_v384", CollectionNameForDim("logs_embedded", 384))
}

func TestWriter_UpsertRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.upsertFails = 2

	w := NewWriter(fake, "logs_embedded", 8, nil, nil)

	err := w.Upsert(context.Background(), testPoints(1))
	require.NoError(t, err)

	assert.Len(t, fake.upserts["logs_embedded"], 1)
}

func TestWriter_UpsertGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	fake.upsertFails = 10

	w := NewWriter(fake, "logs_embedded", 8, nil, nil)

	err := w.Upsert(context.Background(), testPoints(1))
	assert.Error(t, err)
}

func TestWriter_UpsertEmptyBatch(t *testing.T) {
	t.Parallel()

	fake := newFakeQdrant()
	w := NewWriter(fake, "logs_embedded", 8, nil, nil)

	require.NoError(t, w.Upsert(context.Background(), nil))
	assert.Empty(t, fake.collections)
}
