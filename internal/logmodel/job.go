package logmodel

import (
	"time"

	"github.com/google/uuid"
)

// Batch size bounds for embedding jobs.
const (
	MinJobBatchSize = 1
	MaxJobBatchSize = 1000
)

// Job is one unit of embedding work: a page of canonical rows to embed.
// Jobs carry ids, not object handles.
type Job struct {
	JobID      string    `json:"job_id"`
	Table      string    `json:"table"`
	Offset     int64     `json:"offset"`
	BatchSize  int       `json:"batch_size"`
	CreatedAt  time.Time `json:"created_at"`
	RetryCount int       `json:"retry_count"`
	Priority   bool      `json:"priority"`

	// Dead-letter annotations, set only while a job sits in the failed queue.
	Error         string `json:"error,omitempty"`
	FailedAt      string `json:"failed_at,omitempty"`
	OriginalQueue string `json:"original_queue,omitempty"`
}

// NewJob creates an embedding job with a fresh id and clamped batch size.
func NewJob(table string, offset int64, batchSize int, priority bool) Job {
	return Job{
		JobID:     uuid.NewString(),
		Table:     table,
		Offset:    offset,
		BatchSize: ClampBatchSize(batchSize),
		CreatedAt: time.Now().UTC(),
		Priority:  priority,
	}
}

// ClampBatchSize bounds a batch size to [MinJobBatchSize, MaxJobBatchSize].
func ClampBatchSize(n int) int {
	if n < MinJobBatchSize {
		return MinJobBatchSize
	}

	if n > MaxJobBatchSize {
		return MaxJobBatchSize
	}

	return n
}
