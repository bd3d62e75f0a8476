// Package logmodel defines the canonical data model shared by the ETL
// pipeline and the embedding worker: streams, raw source rows, canonical
// log records, embedding points, and job bookkeeping types.
package logmodel

import (
	"strings"
	"time"
)

// Direction classifies how log traffic flows relative to the platform.
type Direction string

// Direction values.
const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
	DirectionInternal Direction = "INTERNAL"
)

// Flow classifies the cadence of a log source.
type Flow string

// Flow values.
const (
	FlowRealtime  Flow = "REALTIME"
	FlowBatch     Flow = "BATCH"
	FlowScheduled Flow = "SCHEDULED"
)

// Coordinates locates a stream within the cloud topology.
type Coordinates struct {
	Region  string `json:"region"`
	Zone    string `json:"zone"`
	Project string `json:"project"`
	Org     string `json:"org"`
}

// Stream is a logical log source table plus its classification and sync state.
type Stream struct {
	StreamID           string      `json:"stream_id"`
	SourceDataset      string      `json:"source_dataset"`
	SourceTable        string      `json:"source_table"`
	Direction          Direction   `json:"direction"`
	Flow               Flow        `json:"flow"`
	Coordinates        Coordinates `json:"coordinates"`
	Enabled            bool        `json:"enabled"`
	Priority           int         `json:"priority"`
	LastSyncOffset     int64       `json:"last_sync_offset"`
	TotalRecordsSynced int64       `json:"total_records_synced"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// StreamID builds the unique stream identifier for a dataset/table pair.
func StreamID(dataset, table string) string {
	return dataset + "." + table
}

// ClassifyDirection derives the traffic direction from the table name.
// Registration may override the derived value.
func ClassifyDirection(table string) Direction {
	name := strings.ToLower(table)

	switch {
	case strings.HasPrefix(name, "audit"):
		return DirectionInternal
	case strings.HasPrefix(name, "request"):
		return DirectionInbound
	case strings.HasPrefix(name, "sink_error"):
		return DirectionOutbound
	default:
		return DirectionInternal
	}
}

// ClassifyFlow derives the cadence from the table name.
func ClassifyFlow(table string) Flow {
	name := strings.ToLower(table)

	if strings.Contains(name, "stdout") || strings.Contains(name, "stderr") {
		return FlowRealtime
	}

	return FlowBatch
}
