// Package queue implements the embedding work queue: three FIFO lists on a
// Redis broker (priority, backlog, failed) holding JSON-serialized jobs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// Broker list keys.
const (
	KeyPriority = "q:embed:priority"
	KeyBacklog  = "q:embed:backlog"
	KeyFailed   = "q:embed:failed"
)

// ErrEmpty is returned by Dequeue when no job is available within the
// timeout.
var ErrEmpty = errors.New("queue: no job available")

// Queue is the process-wide embedding job broker. Producers are the
// scheduler, the CLI, and the worker itself (next-page jobs); consumers are
// workers.
type Queue struct {
	client *redis.Client
	logger *slog.Logger
}

// New creates a Queue over the given Redis client.
func New(client *redis.Client, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{client: client, logger: logger}
}

// Ping verifies broker connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	err := q.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("queue ping: %w", err)
	}

	return nil
}

// Enqueue pushes a job onto the priority or backlog queue.
func (q *Queue) Enqueue(ctx context.Context, job logmodel.Job) error {
	key := KeyBacklog
	if job.Priority {
		key = KeyPriority
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pushErr := q.client.RPush(ctx, key, data).Err()
	if pushErr != nil {
		return fmt.Errorf("enqueue to %s: %w", key, pushErr)
	}

	return nil
}

// Dequeue returns the next job: the priority queue is drained first without
// blocking, then the backlog is polled with a blocking pop up to timeout.
// Returns ErrEmpty when nothing arrives in time.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (logmodel.Job, error) {
	raw, err := q.client.LPop(ctx, KeyPriority).Result()

	switch {
	case err == nil:
		return decodeJob(raw)
	case !errors.Is(err, redis.Nil):
		return logmodel.Job{}, fmt.Errorf("pop priority: %w", err)
	}

	values, err := q.client.BLPop(ctx, timeout, KeyBacklog).Result()
	if errors.Is(err, redis.Nil) {
		return logmodel.Job{}, ErrEmpty
	}

	if err != nil {
		return logmodel.Job{}, fmt.Errorf("pop backlog: %w", err)
	}

	// BLPOP returns [key, value].
	if len(values) != 2 {
		return logmodel.Job{}, ErrEmpty
	}

	return decodeJob(values[1])
}

// MarkFailed moves a job into the dead-letter queue, annotated with the
// error, failure time, and originating queue.
func (q *Queue) MarkFailed(ctx context.Context, job logmodel.Job, cause string) error {
	job.Error = cause
	job.FailedAt = time.Now().UTC().Format(time.RFC3339)
	job.OriginalQueue = KeyBacklog

	if job.Priority {
		job.OriginalQueue = KeyPriority
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal failed job: %w", err)
	}

	pushErr := q.client.RPush(ctx, KeyFailed, data).Err()
	if pushErr != nil {
		return fmt.Errorf("push to dead-letter: %w", pushErr)
	}

	q.logger.Warn("job dead-lettered",
		slog.String("job_id", job.JobID),
		slog.String("table", job.Table),
		slog.Int64("offset", job.Offset),
		slog.String("error", cause),
	)

	return nil
}

// RetryFailed moves up to count dead-lettered jobs back into a processing
// queue, incrementing retry_count and clearing the failure annotations.
// Returns how many jobs were restored.
func (q *Queue) RetryFailed(ctx context.Context, count int, toPriority bool) (int, error) {
	target := KeyBacklog
	if toPriority {
		target = KeyPriority
	}

	restored := 0

	for range count {
		raw, err := q.client.LPop(ctx, KeyFailed).Result()
		if errors.Is(err, redis.Nil) {
			break
		}

		if err != nil {
			return restored, fmt.Errorf("pop dead-letter: %w", err)
		}

		job, decodeErr := decodeJob(raw)
		if decodeErr != nil {
			q.logger.Warn("dropping undecodable dead-letter entry", slog.String("error", decodeErr.Error()))

			continue
		}

		job.RetryCount++
		job.Error = ""
		job.FailedAt = ""
		job.OriginalQueue = ""
		job.Priority = toPriority

		data, marshalErr := json.Marshal(job)
		if marshalErr != nil {
			return restored, fmt.Errorf("marshal retried job: %w", marshalErr)
		}

		pushErr := q.client.RPush(ctx, target, data).Err()
		if pushErr != nil {
			return restored, fmt.Errorf("requeue job: %w", pushErr)
		}

		restored++
	}

	return restored, nil
}

// Peek returns up to n jobs from each queue without removing them.
func (q *Queue) Peek(ctx context.Context, n int) (map[string][]logmodel.Job, error) {
	out := make(map[string][]logmodel.Job, 3)

	for _, key := range []string{KeyPriority, KeyBacklog, KeyFailed} {
		raws, err := q.client.LRange(ctx, key, 0, int64(n-1)).Result()
		if err != nil {
			return nil, fmt.Errorf("peek %s: %w", key, err)
		}

		jobs := make([]logmodel.Job, 0, len(raws))

		for _, raw := range raws {
			job, decodeErr := decodeJob(raw)
			if decodeErr != nil {
				continue
			}

			jobs = append(jobs, job)
		}

		out[key] = jobs
	}

	return out, nil
}

// Depths returns the length of each queue.
func (q *Queue) Depths(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 3)

	for _, key := range []string{KeyPriority, KeyBacklog, KeyFailed} {
		depth, err := q.client.LLen(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("depth of %s: %w", key, err)
		}

		out[key] = depth
	}

	return out, nil
}

func decodeJob(raw string) (logmodel.Job, error) {
	var job logmodel.Job

	err := json.Unmarshal([]byte(raw), &job)
	if err != nil {
		return logmodel.Job{}, fmt.Errorf("decode job: %w", err)
	}

	return job, nil
}
