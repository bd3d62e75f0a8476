package logmodel

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SchemaVersion is written on every canonical record. Readers tolerate
// older minor versions.
const SchemaVersion = "1.1.0"

// Byte and character bounds for canonical string fields.
const (
	MaxMessageBytes   = 10 * 1024
	MaxPayloadBytes   = 10 * 1024
	MaxStackBytes     = 5 * 1024
	MaxSummaryChars   = 200
	MaxEmbedTextBytes = 8 * 1024
)

// PII risk levels, ordered none < low < moderate < high.
const (
	PIIRiskNone     = "none"
	PIIRiskLow      = "low"
	PIIRiskModerate = "moderate"
	PIIRiskHigh     = "high"
)

// Retention classes.
const (
	RetentionStandard = "standard"
	RetentionAudit    = "audit"
)

// Log types derived from the source table name.
const (
	LogTypeApplication = "application"
	LogTypeSystem      = "system"
	LogTypeAudit       = "audit"
	LogTypeRequest     = "request"
	LogTypeBuild       = "build"
	LogTypeError       = "error"
)

// CanonicalLog is the normalized, envelope-annotated record written to the
// master table. Records are immutable once loaded.
type CanonicalLog struct {
	// Required identity and ordering fields.
	LogID           string    `json:"log_id"`
	InsertID        string    `json:"insert_id,omitempty"`
	EventTimestamp  time.Time `json:"event_timestamp"`
	IngestTimestamp time.Time `json:"ingest_timestamp"`
	Severity        string    `json:"severity"`
	SeverityLevel   int       `json:"severity_level"`
	LogType         string    `json:"log_type"`
	LogName         string    `json:"log_name,omitempty"`
	SourceDataset   string    `json:"source_dataset"`
	SourceTable     string    `json:"source_table"`
	StreamID        string    `json:"stream_id"`
	ServiceName     string    `json:"service_name"`
	ServiceVersion  string    `json:"service_version,omitempty"`

	// Resource facet.
	ResourceType     string            `json:"resource_type,omitempty"`
	ResourceProject  string            `json:"resource_project,omitempty"`
	ResourceName     string            `json:"resource_name,omitempty"`
	ResourceLocation string            `json:"resource_location,omitempty"`
	ResourceLabels   map[string]string `json:"resource_labels,omitempty"`

	// Message and payload union. JSON and proto payloads keep their parsed
	// form for downstream consumers; the loader serializes them bounded.
	Message         string         `json:"message"`
	MessageSummary  string         `json:"message_summary,omitempty"`
	MessageCategory string         `json:"message_category,omitempty"`
	TextPayload     string         `json:"text_payload,omitempty"`
	JSONPayload     map[string]any `json:"json_payload,omitempty"`
	ProtoPayload    map[string]any `json:"proto_payload,omitempty"`

	// HTTP facet.
	HTTPMethod       string  `json:"http_method,omitempty"`
	HTTPURL          string  `json:"http_url,omitempty"`
	HTTPStatus       int     `json:"http_status,omitempty"`
	HTTPLatencyMS    float64 `json:"http_latency_ms,omitempty"`
	HTTPUserAgent    string  `json:"http_user_agent,omitempty"`
	HTTPRemoteIP     string  `json:"http_remote_ip,omitempty"`
	HTTPRequestSize  int64   `json:"http_request_size,omitempty"`
	HTTPResponseSize int64   `json:"http_response_size,omitempty"`

	// Trace facet.
	TraceID      string `json:"trace_id,omitempty"`
	SpanID       string `json:"span_id,omitempty"`
	TraceSampled bool   `json:"trace_sampled,omitempty"`
	ParentSpanID string `json:"parent_span_id,omitempty"`

	// Operation facet.
	OperationID       string `json:"operation_id,omitempty"`
	OperationProducer string `json:"operation_producer,omitempty"`
	OperationFirst    bool   `json:"operation_first,omitempty"`
	OperationLast     bool   `json:"operation_last,omitempty"`

	// Source location facet.
	SourceFile     string `json:"source_file,omitempty"`
	SourceLine     int64  `json:"source_line,omitempty"`
	SourceFunction string `json:"source_function,omitempty"`

	// Principal facet (audit logs).
	PrincipalEmail   string `json:"principal_email,omitempty"`
	PrincipalSubject string `json:"principal_subject,omitempty"`
	CallerIP         string `json:"caller_ip,omitempty"`
	CallerNetwork    string `json:"caller_network,omitempty"`
	AuditService     string `json:"audit_service,omitempty"`
	AuditMethod      string `json:"audit_method,omitempty"`
	StatusCode       int    `json:"status_code,omitempty"`
	StatusMessage    string `json:"status_message,omitempty"`

	// Error facet.
	ErrorCode       string `json:"error_code,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ErrorStackTrace string `json:"error_stack_trace,omitempty"`
	ErrorGroup      string `json:"error_group,omitempty"`

	// Envelope facet.
	SchemaVersion  string            `json:"schema_version"`
	Environment    string            `json:"environment,omitempty"`
	CorrelationIDs map[string]string `json:"correlation_ids,omitempty"`
	PIIRisk        string            `json:"privacy_pii_risk"`
	RedactionState string            `json:"redaction_state,omitempty"`
	RetentionClass string            `json:"retention_class"`

	// Free-form labels from the source record.
	Labels map[string]string `json:"labels,omitempty"`

	// Derived flags and partition keys, computed by Finalize.
	IsError    bool   `json:"is_error"`
	IsAudit    bool   `json:"is_audit"`
	IsRequest  bool   `json:"is_request"`
	HasTrace   bool   `json:"has_trace"`
	LogDate    string `json:"log_date"`
	ClusterKey string `json:"cluster_key"`
}

// Finalize computes the derived flags and partition keys from the record's
// own fields. It is the single place these invariants are established.
func (c *CanonicalLog) Finalize() {
	c.IsError = c.SeverityLevel >= ErrorLevelThreshold
	c.IsAudit = strings.Contains(c.SourceTable, "audit")
	c.IsRequest = strings.Contains(c.SourceTable, "request")
	c.HasTrace = c.TraceID != ""
	c.LogDate = c.EventTimestamp.UTC().Format("2006-01-02")
	c.ClusterKey = c.Severity + ":" + c.ServiceName
}

// Truncate bounds a string to at most limit bytes without splitting a
// multi-byte rune.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	cut := s[:limit]

	// Only the boundary can split a rune, so back off at most a rune's
	// worth of bytes. Invalid bytes earlier in the string pass through
	// unchanged.
	for range utf8.UTFMax - 1 {
		if len(cut) == 0 {
			break
		}

		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size > 1 {
			break
		}

		cut = cut[:len(cut)-1]
	}

	return cut
}
