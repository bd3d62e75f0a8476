package logmodel

import "time"

// RawLogRecord is the schema-adaptive page output of the extractor. Every
// field the source might carry is present; columns missing from the source
// table stay nil. Raw records are transient: produced and consumed within
// one pipeline page.
type RawLogRecord struct {
	// Stream provenance, always populated by the extractor.
	StreamID      string
	SourceDataset string
	SourceTable   string

	// Core columns.
	InsertID         *string
	Timestamp        *time.Time
	ReceiveTimestamp *time.Time
	Severity         *string
	LogName          *string

	// Payload variants.
	TextPayload  *string
	JSONPayload  map[string]any
	ProtoPayload map[string]any

	// Context columns.
	HTTPRequest    map[string]any
	Resource       map[string]any
	Operation      map[string]any
	SourceLocation map[string]any
	Labels         map[string]string
	Trace          *string
	SpanID         *string
	TraceSampled   *bool
}

// Str returns the dereferenced value of an optional string column.
func Str(p *string) string {
	if p == nil {
		return ""
	}

	return *p
}
