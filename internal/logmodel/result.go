package logmodel

import "time"

// Pipeline run statuses.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusPartial   = "PARTIAL"
	StatusFailed    = "FAILED"
)

// MaxRecordedErrors bounds the error strings kept on a pipeline result.
const MaxRecordedErrors = 50

// StreamCounts holds per-stream progress for one pipeline run.
type StreamCounts struct {
	Extracted   int64 `json:"extracted"`
	Normalized  int64 `json:"normalized"`
	Transformed int64 `json:"transformed"`
	Loaded      int64 `json:"loaded"`
	Failed      int64 `json:"failed"`
}

// PipelineResult records one pipeline run across all selected streams.
type PipelineResult struct {
	PipelineID       string                  `json:"pipeline_id"`
	StartedAt        time.Time               `json:"started_at"`
	CompletedAt      time.Time               `json:"completed_at,omitzero"`
	Status           string                  `json:"status"`
	StreamsProcessed int                     `json:"streams_processed"`
	TotalExtracted   int64                   `json:"total_extracted"`
	TotalNormalized  int64                   `json:"total_normalized"`
	TotalTransformed int64                   `json:"total_transformed"`
	TotalLoaded      int64                   `json:"total_loaded"`
	Errors           []string                `json:"errors,omitempty"`
	StreamResults    map[string]StreamCounts `json:"stream_results,omitempty"`
}

// RecordError appends an error string, keeping at most MaxRecordedErrors.
func (r *PipelineResult) RecordError(msg string) {
	if len(r.Errors) >= MaxRecordedErrors {
		return
	}

	r.Errors = append(r.Errors, msg)
}

// AddStreamCounts accumulates per-stream counts into the run totals.
func (r *PipelineResult) AddStreamCounts(streamID string, counts StreamCounts) {
	if r.StreamResults == nil {
		r.StreamResults = make(map[string]StreamCounts)
	}

	prev := r.StreamResults[streamID]
	prev.Extracted += counts.Extracted
	prev.Normalized += counts.Normalized
	prev.Transformed += counts.Transformed
	prev.Loaded += counts.Loaded
	prev.Failed += counts.Failed
	r.StreamResults[streamID] = prev

	r.TotalExtracted += counts.Extracted
	r.TotalNormalized += counts.Normalized
	r.TotalTransformed += counts.Transformed
	r.TotalLoaded += counts.Loaded
}
