package logmodel

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EmbeddingPoint is one vector plus the filterable payload stored in the
// vector index. Points are idempotent upserts keyed by PointID.
type EmbeddingPoint struct {
	PointID string
	Vector  []float32
	Payload map[string]any
}

// PointID derives the stable identifier for a (log, chunk) pair. The same
// pair always yields the same UUIDv5, which makes upserts idempotent.
func PointID(logID string, chunkIdx int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(logID+":"+strconv.Itoa(chunkIdx))).String()
}

// PointPayload builds the filterable payload for a canonical record.
// textPayload is the bounded chunk text carried alongside the vector.
func PointPayload(c *CanonicalLog, textPayload, sourceFile string) map[string]any {
	ts := c.EventTimestamp.UTC()

	payload := map[string]any{
		"log_id":          c.LogID,
		"severity":        c.Severity,
		"service_name":    c.ServiceName,
		"resource_type":   c.ResourceType,
		"dataset":         c.SourceDataset,
		"table_name":      c.SourceTable,
		"event_timestamp": ts.Format(time.RFC3339),
		"timestamp": map[string]any{
			"year":  ts.Year(),
			"month": int(ts.Month()),
			"day":   ts.Day(),
			"hour":  ts.Hour(),
		},
		"text_payload":     textPayload,
		"has_json":         len(c.JSONPayload) > 0,
		"has_http_request": c.HTTPMethod != "" || c.HTTPURL != "",
	}

	if c.TraceID != "" {
		payload["trace_id"] = c.TraceID
	}

	if c.SpanID != "" {
		payload["span_id"] = c.SpanID
	}

	if sourceFile != "" {
		payload["source_file"] = sourceFile
	}

	return payload
}
