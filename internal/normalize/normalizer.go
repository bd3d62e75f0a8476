// Package normalize maps raw source rows to canonical log records. The
// mapping is a pure function: the same input always yields the same output,
// including the derived log id. Ingest timestamps are set later by the
// loader.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// serviceNameKeys are tried in order when projecting the service name from
// resource labels.
var serviceNameKeys = []string{"service_name", "function_name", "instance_id", "job_name", "cluster_name"}

// serviceVersionKeys are tried in order when projecting the service version.
var serviceVersionKeys = []string{"revision_name", "version_id"}

// tracePathPrefix marks the path-form trace field whose final segment is the
// actual trace id.
const tracePathSeparator = "/traces/"

// Normalize converts one raw source row into a canonical record. The steps
// run in fixed order; see the individual helpers for the field rules.
func Normalize(raw *logmodel.RawLogRecord) *logmodel.CanonicalLog {
	c := &logmodel.CanonicalLog{
		SourceDataset: raw.SourceDataset,
		SourceTable:   raw.SourceTable,
		StreamID:      raw.StreamID,
		LogName:       logmodel.Str(raw.LogName),
		InsertID:      logmodel.Str(raw.InsertID),
		SchemaVersion: logmodel.SchemaVersion,
		Labels:        raw.Labels,
	}

	// 1. Severity and log type.
	c.Severity = normalizeSeverity(logmodel.Str(raw.Severity))
	c.SeverityLevel = logmodel.SeverityLevel(c.Severity)
	c.LogType = classifyLogType(raw.SourceTable)

	if raw.Timestamp != nil {
		c.EventTimestamp = raw.Timestamp.UTC()
	} else if raw.ReceiveTimestamp != nil {
		c.EventTimestamp = raw.ReceiveTimestamp.UTC()
	}

	// 2. Resource projection.
	applyResourceFacet(c, raw.Resource)

	// 3. Payload union.
	applyPayloads(c, raw)

	// 4. HTTP facet.
	applyHTTPFacet(c, raw.HTTPRequest)

	// 5. Trace facet.
	applyTraceFacet(c, raw)

	// 6. Error extraction.
	extractError(c, c.TextPayload)

	// 7. Unified message.
	c.Message = buildMessage(c)

	// 8. Envelope.
	c.IsAudit = strings.Contains(c.SourceTable, "audit")
	c.Environment = deriveEnvironment(raw.Labels, c.ResourceLabels, c.ServiceName)
	c.PIIRisk = ClassifyPIIRisk(c.Message, c.TextPayload, serializeForScan(c.JSONPayload))
	c.RetentionClass = retentionClass(c.IsAudit)
	c.CorrelationIDs = collectCorrelationIDs(raw.Labels, c.JSONPayload)

	// 9. Message metadata.
	c.MessageSummary = summarize(c.Message)
	c.MessageCategory = categorize(c)

	// Operation and source location facets.
	applyOperationFacet(c, raw.Operation)
	applySourceLocation(c, raw.SourceLocation)

	c.LogID = deriveLogID(raw)
	c.Finalize()

	return c
}

// normalizeSeverity uppercases and validates the severity name.
func normalizeSeverity(severity string) string {
	upper := strings.ToUpper(strings.TrimSpace(severity))
	if !logmodel.KnownSeverity(upper) {
		return logmodel.SeverityDefault
	}

	return upper
}

// classifyLogType derives the log type from the source table name.
func classifyLogType(table string) string {
	name := strings.ToLower(table)

	switch {
	case strings.Contains(name, "audit"):
		return logmodel.LogTypeAudit
	case strings.Contains(name, "request"):
		return logmodel.LogTypeRequest
	case strings.Contains(name, "build"):
		return logmodel.LogTypeBuild
	case strings.Contains(name, "error"):
		return logmodel.LogTypeError
	case strings.Contains(name, "syslog") || strings.Contains(name, "system"):
		return logmodel.LogTypeSystem
	default:
		return logmodel.LogTypeApplication
	}
}

// applyResourceFacet projects the resource object: type, project, location,
// and the first available service name/version label.
func applyResourceFacet(c *logmodel.CanonicalLog, resource map[string]any) {
	if len(resource) == 0 {
		return
	}

	c.ResourceType = stringField(resource, "type")

	labels := stringMapField(resource, "labels")
	if labels == nil {
		return
	}

	c.ResourceLabels = labels
	c.ResourceProject = labels["project_id"]
	c.ResourceName = labels["name"]

	for _, key := range []string{"region", "zone", "location"} {
		if v := labels[key]; v != "" {
			c.ResourceLocation = v

			break
		}
	}

	for _, key := range serviceNameKeys {
		if v := labels[key]; v != "" {
			c.ServiceName = v

			break
		}
	}

	for _, key := range serviceVersionKeys {
		if v := labels[key]; v != "" {
			c.ServiceVersion = v

			break
		}
	}
}

// applyPayloads copies the payload union and promotes json message, error,
// and severity-level override. Proto payloads feed the audit facet.
func applyPayloads(c *logmodel.CanonicalLog, raw *logmodel.RawLogRecord) {
	c.TextPayload = logmodel.Truncate(logmodel.Str(raw.TextPayload), logmodel.MaxPayloadBytes)
	c.JSONPayload = raw.JSONPayload
	c.ProtoPayload = raw.ProtoPayload

	if errMsg, ok := raw.JSONPayload["error"].(string); ok && errMsg != "" {
		c.ErrorMessage = errMsg
	}

	if level, ok := raw.JSONPayload["level"].(string); ok {
		upper := strings.ToUpper(strings.TrimSpace(level))
		if logmodel.KnownSeverity(upper) {
			c.Severity = upper
			c.SeverityLevel = logmodel.SeverityLevel(upper)
		}
	}

	applyAuditFacet(c, raw.ProtoPayload)
}

// applyAuditFacet extracts the audit fields from a proto payload.
func applyAuditFacet(c *logmodel.CanonicalLog, proto map[string]any) {
	if len(proto) == 0 {
		return
	}

	c.AuditMethod = stringField(proto, "methodName")
	c.AuditService = stringField(proto, "serviceName")

	if meta, ok := proto["requestMetadata"].(map[string]any); ok {
		c.CallerIP = stringField(meta, "callerIp")
		c.CallerNetwork = stringField(meta, "callerNetwork")
	}

	if auth, ok := proto["authenticationInfo"].(map[string]any); ok {
		c.PrincipalEmail = stringField(auth, "principalEmail")
		c.PrincipalSubject = stringField(auth, "principalSubject")
	}

	if status, ok := proto["status"].(map[string]any); ok {
		c.StatusCode = int(numberField(status, "code"))
		c.StatusMessage = stringField(status, "message")
	}
}

// applyTraceFacet copies trace identifiers, stripping the path form
// "projects/<p>/traces/<id>" down to the bare id.
func applyTraceFacet(c *logmodel.CanonicalLog, raw *logmodel.RawLogRecord) {
	trace := logmodel.Str(raw.Trace)
	if idx := strings.LastIndex(trace, tracePathSeparator); idx >= 0 {
		trace = trace[idx+len(tracePathSeparator):]
	}

	c.TraceID = trace
	c.SpanID = logmodel.Str(raw.SpanID)

	if raw.TraceSampled != nil {
		c.TraceSampled = *raw.TraceSampled
	}
}

// applyOperationFacet copies the long-running operation descriptor.
func applyOperationFacet(c *logmodel.CanonicalLog, operation map[string]any) {
	if len(operation) == 0 {
		return
	}

	c.OperationID = stringField(operation, "id")
	c.OperationProducer = stringField(operation, "producer")
	c.OperationFirst, _ = operation["first"].(bool)
	c.OperationLast, _ = operation["last"].(bool)
}

// applySourceLocation copies the code location facet.
func applySourceLocation(c *logmodel.CanonicalLog, loc map[string]any) {
	if len(loc) == 0 {
		return
	}

	c.SourceFile = stringField(loc, "file")
	c.SourceLine = int64(numberField(loc, "line"))
	c.SourceFunction = stringField(loc, "function")
}

// deriveLogID produces a stable UUID for the record. Rows with an insert id
// reuse it so re-ingestion derives the same id; otherwise the id is hashed
// from the row content.
func deriveLogID(raw *logmodel.RawLogRecord) string {
	if id := logmodel.Str(raw.InsertID); id != "" {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(raw.StreamID+":"+id)).String()
	}

	var ts string
	if raw.Timestamp != nil {
		ts = raw.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	content := strings.Join([]string{
		raw.StreamID,
		ts,
		logmodel.Str(raw.TextPayload),
		serializeForScan(raw.JSONPayload),
		logmodel.Str(raw.LogName),
	}, "\x1f")

	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(content)).String()
}

// stringMapField converts a nested map field to map[string]string, dropping
// non-string values.
func stringMapField(obj map[string]any, key string) map[string]string {
	nested, ok := obj[key].(map[string]any)
	if !ok {
		// Some drivers decode directly to map[string]string.
		direct, isDirect := obj[key].(map[string]string)
		if isDirect {
			return direct
		}

		return nil
	}

	out := make(map[string]string, len(nested))

	for k, v := range nested {
		if s, isString := v.(string); isString {
			out[k] = s
		}
	}

	return out
}

// serializeForScan renders a json payload for PII scanning and id hashing.
// Marshalling a map sorts keys, so the output is deterministic.
func serializeForScan(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	return string(data)
}
