package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Batch size bounds and defaults per tuned operation.
const (
	MinEmbedBatch     = 5
	MaxEmbedBatch     = 50
	DefaultEmbedBatch = 10

	MinUpsertBatch     = 10
	MaxUpsertBatch     = 100
	DefaultUpsertBatch = 20
)

// Tuning rule thresholds.
const (
	// minTuneSamples is the minimum sample count before the rule applies.
	minTuneSamples = 10

	// targetLatencyMS is the latency the tuner steers toward.
	targetLatencyMS = 500.0

	// maxLatencyMS is the hard ceiling triggering an aggressive step down.
	maxLatencyMS = 2000.0

	highErrorRate = 0.05
	lowErrorRate  = 0.01

	stepDownHard = 0.7
	stepDownSoft = 0.9
	stepUp       = 1.2

	// overTargetFactor marks the soft step-down band above target latency.
	overTargetFactor = 1.5
)

// DefaultTuneInterval is how often the tuner re-evaluates batch sizes.
const DefaultTuneInterval = 30 * time.Second

// BatchSizes holds the persisted optimal sub-batch sizes.
type BatchSizes struct {
	Embed     int       `json:"embed"`
	Upsert    int       `json:"upsert"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultBatchSizes returns the starting sizes before any tuning.
func DefaultBatchSizes() BatchSizes {
	return BatchSizes{Embed: DefaultEmbedBatch, Upsert: DefaultUpsertBatch}
}

// OptimalBatchSizes loads the persisted sizes, falling back to defaults.
func (r *Registry) OptimalBatchSizes(ctx context.Context) (BatchSizes, error) {
	raw, err := r.client.Get(ctx, keyOptimalBatch).Result()
	if errors.Is(err, redis.Nil) {
		return DefaultBatchSizes(), nil
	}

	if err != nil {
		return DefaultBatchSizes(), fmt.Errorf("get optimal batch sizes: %w", err)
	}

	var sizes BatchSizes

	unmarshalErr := json.Unmarshal([]byte(raw), &sizes)
	if unmarshalErr != nil {
		return DefaultBatchSizes(), fmt.Errorf("decode optimal batch sizes: %w", unmarshalErr)
	}

	return sizes, nil
}

// SaveBatchSizes persists the tuned sizes.
func (r *Registry) SaveBatchSizes(ctx context.Context, sizes BatchSizes) error {
	sizes.UpdatedAt = time.Now().UTC()

	return r.setJSON(ctx, keyOptimalBatch, sizes)
}

// NextBatchSize applies the adaptive tuning rule to one operation's size
// given its rolling samples and windowed error count. The result is clamped
// to [minSize, maxSize]. With fewer than minTuneSamples samples the size
// holds.
func NextBatchSize(current int, samples []float64, errorCount int64, minSize, maxSize int) int {
	if len(samples) < minTuneSamples {
		return clamp(current, minSize, maxSize)
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}

	avg := sum / float64(len(samples))
	errorRate := float64(errorCount) / math.Max(float64(len(samples)), 1)

	next := float64(current)

	switch {
	case errorRate > highErrorRate:
		next *= stepDownHard
	case avg > maxLatencyMS:
		next *= stepDownHard
	case avg > overTargetFactor*targetLatencyMS:
		next *= stepDownSoft
	case avg < targetLatencyMS && errorRate < lowErrorRate:
		next *= stepUp
	}

	return clamp(int(math.Round(next)), minSize, maxSize)
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}

	if v > high {
		return high
	}

	return v
}

// Tuner periodically re-evaluates the optimal batch sizes from the rolling
// metrics. It is the only writer of the persisted sizes.
type Tuner struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
}

// NewTuner creates a Tuner over the registry.
func NewTuner(registry *Registry, interval time.Duration, logger *slog.Logger) *Tuner {
	if interval <= 0 {
		interval = DefaultTuneInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Tuner{registry: registry, interval: interval, logger: logger}
}

// Run evaluates on a fixed interval until the context is cancelled.
func (t *Tuner) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := t.Tick(ctx)
			if err != nil {
				t.logger.Warn("batch size tuning failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick performs one evaluation: load metrics for both services, apply the
// rule, and persist when anything changed.
func (t *Tuner) Tick(ctx context.Context) error {
	sizes, err := t.registry.OptimalBatchSizes(ctx)
	if err != nil {
		return err
	}

	embedNext, err := t.nextFor(ctx, ServiceEmbed, sizes.Embed, MinEmbedBatch, MaxEmbedBatch)
	if err != nil {
		return err
	}

	upsertNext, err := t.nextFor(ctx, ServiceVector, sizes.Upsert, MinUpsertBatch, MaxUpsertBatch)
	if err != nil {
		return err
	}

	if embedNext == sizes.Embed && upsertNext == sizes.Upsert {
		return nil
	}

	t.logger.Info("batch sizes retuned",
		slog.Int("embed_from", sizes.Embed),
		slog.Int("embed_to", embedNext),
		slog.Int("upsert_from", sizes.Upsert),
		slog.Int("upsert_to", upsertNext),
	)

	sizes.Embed = embedNext
	sizes.Upsert = upsertNext

	return t.registry.SaveBatchSizes(ctx, sizes)
}

func (t *Tuner) nextFor(ctx context.Context, service string, current, minSize, maxSize int) (int, error) {
	samples, err := t.registry.LatencySamples(ctx, service)
	if err != nil {
		return current, err
	}

	errorCount, err := t.registry.ErrorCount(ctx, service)
	if err != nil {
		return current, err
	}

	return NextBatchSize(current, samples, errorCount, minSize, maxSize), nil
}
