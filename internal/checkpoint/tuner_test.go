package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesOf(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}

	return out
}

func TestNextBatchSize_HoldsBelowMinSamples(t *testing.T) {
	t.Parallel()

	got := NextBatchSize(20, samplesOf(3000, 5), 0, MinEmbedBatch, MaxEmbedBatch)
	assert.Equal(t, 20, got)
}

func TestNextBatchSize_StepDownOnHighLatency(t *testing.T) {
	t.Parallel()

	// 10 samples at avg 2500 ms with size 20 steps down to round(20*0.7)=14.
	got := NextBatchSize(20, samplesOf(2500, 10), 0, MinEmbedBatch, MaxEmbedBatch)
	assert.Equal(t, 14, got)
}

func TestNextBatchSize_StepDownOnErrors(t *testing.T) {
	t.Parallel()

	// error_rate = 2/10 = 20% > 5% even though latency is fine.
	got := NextBatchSize(20, samplesOf(100, 10), 2, MinEmbedBatch, MaxEmbedBatch)
	assert.Equal(t, 14, got)
}

func TestNextBatchSize_SoftStepDown(t *testing.T) {
	t.Parallel()

	// avg 1000 ms is above 1.5 x target (750) but below the 2 s ceiling.
	got := NextBatchSize(20, samplesOf(1000, 10), 0, MinEmbedBatch, MaxEmbedBatch)
	assert.Equal(t, 18, got)
}

func TestNextBatchSize_StepUpWhenFast(t *testing.T) {
	t.Parallel()

	got := NextBatchSize(20, samplesOf(100, 10), 0, MinEmbedBatch, MaxEmbedBatch)
	assert.Equal(t, 24, got)
}

func TestNextBatchSize_Hold(t *testing.T) {
	t.Parallel()

	// avg between target and 1.5 x target holds.
	got := NextBatchSize(20, samplesOf(600, 10), 0, MinEmbedBatch, MaxEmbedBatch)
	assert.Equal(t, 20, got)
}

func TestNextBatchSize_Clamped(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MinEmbedBatch, NextBatchSize(6, samplesOf(3000, 10), 0, MinEmbedBatch, MaxEmbedBatch))
	assert.Equal(t, MaxEmbedBatch, NextBatchSize(45, samplesOf(100, 10), 0, MinEmbedBatch, MaxEmbedBatch))
}

func TestTuner_TickPersists(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for range 12 {
		require.NoError(t, r.RecordLatency(ctx, ServiceEmbed, 2500))
	}

	tuner := NewTuner(r, 0, nil)
	require.NoError(t, tuner.Tick(ctx))

	sizes, err := r.OptimalBatchSizes(ctx)
	require.NoError(t, err)

	// Embed stepped down from the default 10 to max(5, round(10*0.7))=7;
	// upsert had no samples and held.
	assert.Equal(t, 7, sizes.Embed)
	assert.Equal(t, DefaultUpsertBatch, sizes.Upsert)
}
