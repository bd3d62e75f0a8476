// Package checkpoint provides the shared Redis-backed state between the ETL
// pipeline and the embedding worker: per-stream checkpoints, a global
// progress record, rolling latency/error metrics, and the adaptive batch
// size tuner.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout on the broker.
const (
	keyCheckpointPrefix = "checkpoint:"
	keyGlobal           = "checkpoint:global"
	keyOptimalBatch     = "metrics:batch:optimal"
)

// Fields of the global checkpoint hash.
const (
	fieldTotalEmbedded   = "total_embedded"
	fieldTablesCompleted = "tables_completed"
	fieldUpdatedAt       = "updated_at"
)

// Metric service names.
const (
	ServiceEmbed  = "ollama"
	ServiceVector = "qdrant"
)

// Rolling metric bounds.
const (
	// maxLatencySamples bounds each per-service latency list.
	maxLatencySamples = 100

	// errorWindow is the TTL of the windowed error counter.
	errorWindow = 300 * time.Second
)

// TableCheckpoint tracks embedding progress for one stream.
type TableCheckpoint struct {
	Offset    int64     `json:"offset"`
	Total     int64     `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GlobalCheckpoint aggregates worker progress across streams.
type GlobalCheckpoint struct {
	TablesCompleted int64     `json:"tables_completed"`
	TotalEmbedded   int64     `json:"total_embedded"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Registry is the checkpoint and metrics store. The pipeline and the worker
// each write only their own keys; the tuner is the only mutator of the
// persisted batch sizes.
type Registry struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRegistry creates a Registry over the given Redis client.
func NewRegistry(client *redis.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{client: client, logger: logger}
}

// Ping verifies store connectivity.
func (r *Registry) Ping(ctx context.Context) error {
	err := r.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("checkpoint store ping: %w", err)
	}

	return nil
}

// Checkpoint returns the stream's checkpoint, or a zero checkpoint when none
// exists yet.
func (r *Registry) Checkpoint(ctx context.Context, streamID string) (TableCheckpoint, error) {
	raw, err := r.client.Get(ctx, keyCheckpointPrefix+streamID).Result()
	if errors.Is(err, redis.Nil) {
		return TableCheckpoint{}, nil
	}

	if err != nil {
		return TableCheckpoint{}, fmt.Errorf("get checkpoint %s: %w", streamID, err)
	}

	var cp TableCheckpoint

	unmarshalErr := json.Unmarshal([]byte(raw), &cp)
	if unmarshalErr != nil {
		return TableCheckpoint{}, fmt.Errorf("decode checkpoint %s: %w", streamID, unmarshalErr)
	}

	return cp, nil
}

// Advance moves the stream checkpoint forward to offset, adding added to the
// running total. Checkpoints are monotonic: an offset at or below the stored
// one leaves it unchanged.
func (r *Registry) Advance(ctx context.Context, streamID string, offset, added int64) error {
	current, err := r.Checkpoint(ctx, streamID)
	if err != nil {
		return err
	}

	if offset <= current.Offset && current.UpdatedAt != (time.Time{}) {
		return nil
	}

	next := TableCheckpoint{
		Offset:    max(offset, current.Offset),
		Total:     current.Total + added,
		UpdatedAt: time.Now().UTC(),
	}

	return r.setJSON(ctx, keyCheckpointPrefix+streamID, next)
}

// Global returns the aggregate worker progress. A missing hash reads as the
// zero value.
func (r *Registry) Global(ctx context.Context) (GlobalCheckpoint, error) {
	fields, err := r.client.HGetAll(ctx, keyGlobal).Result()
	if err != nil {
		return GlobalCheckpoint{}, fmt.Errorf("get global checkpoint: %w", err)
	}

	cp := GlobalCheckpoint{
		TablesCompleted: parseHashInt(fields[fieldTablesCompleted]),
		TotalEmbedded:   parseHashInt(fields[fieldTotalEmbedded]),
	}

	if unix := parseHashInt(fields[fieldUpdatedAt]); unix > 0 {
		cp.UpdatedAt = time.Unix(unix, 0).UTC()
	}

	return cp, nil
}

// BumpGlobal adds embedded points to the global total and optionally counts
// a completed table. The counters are hash increments, so concurrent workers
// never lose updates.
func (r *Registry) BumpGlobal(ctx context.Context, embedded int64, tableCompleted bool) error {
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, keyGlobal, fieldTotalEmbedded, embedded)

	if tableCompleted {
		pipe.HIncrBy(ctx, keyGlobal, fieldTablesCompleted, 1)
	}

	pipe.HSet(ctx, keyGlobal, fieldUpdatedAt, time.Now().UTC().Unix())

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("bump global checkpoint: %w", err)
	}

	return nil
}

func parseHashInt(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}

	return n
}

// RecordLatency pushes one latency sample (milliseconds) onto the service's
// rolling list, trimmed to the newest maxLatencySamples entries.
func (r *Registry) RecordLatency(ctx context.Context, service string, ms float64) error {
	key := latencyKey(service)

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, ms)
	pipe.LTrim(ctx, key, 0, maxLatencySamples-1)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("record latency for %s: %w", service, err)
	}

	return nil
}

// RecordError increments the service's windowed error counter.
func (r *Registry) RecordError(ctx context.Context, service string) error {
	key := errorKey(service)

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, errorWindow)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("record error for %s: %w", service, err)
	}

	return nil
}

// LatencySamples returns the rolling latency samples for a service, newest
// first.
func (r *Registry) LatencySamples(ctx context.Context, service string) ([]float64, error) {
	raws, err := r.client.LRange(ctx, latencyKey(service), 0, maxLatencySamples-1).Result()
	if err != nil {
		return nil, fmt.Errorf("latency samples for %s: %w", service, err)
	}

	samples := make([]float64, 0, len(raws))

	for _, raw := range raws {
		var v float64

		_, scanErr := fmt.Sscanf(raw, "%g", &v)
		if scanErr != nil {
			continue
		}

		samples = append(samples, v)
	}

	return samples, nil
}

// ErrorCount returns the current windowed error count for a service.
func (r *Registry) ErrorCount(ctx context.Context, service string) (int64, error) {
	count, err := r.client.Get(ctx, errorKey(service)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("error count for %s: %w", service, err)
	}

	return count, nil
}

func (r *Registry) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	setErr := r.client.Set(ctx, key, data, 0).Err()
	if setErr != nil {
		return fmt.Errorf("set %s: %w", key, setErr)
	}

	return nil
}

func latencyKey(service string) string { return "metrics:" + service + ":latency" }
func errorKey(service string) string   { return "metrics:" + service + ":errors" }
