package embed

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// Per-section byte bounds for the full trace text.
const (
	maxTraceMessageBytes = 4 * 1024
	maxTraceJSONBytes    = 2 * 1024
	maxTraceProtoBytes   = 1 * 1024
	maxTraceLabels       = 5
	maxResourceLabels    = 3
)

// BuildTraceText renders the single canonical "full trace text" for a
// record: a joined, bounded string carrying everything worth embedding.
// The layout is fixed so identical records always embed identically.
func BuildTraceText(c *logmodel.CanonicalLog) string {
	var parts []string

	header := "[" + c.EventTimestamp.UTC().Format(time.RFC3339) + "] [" + c.Severity + "]"
	if c.ServiceName != "" {
		header += " [" + c.ServiceName + "]"
	}

	parts = append(parts, header)

	if c.Message != "" {
		parts = append(parts, "Message: "+logmodel.Truncate(c.Message, maxTraceMessageBytes))
	}

	if section := serializeBounded(c.JSONPayload, maxTraceJSONBytes); section != "" {
		parts = append(parts, "JSON: "+section)
	}

	if section := serializeBounded(c.ProtoPayload, maxTraceProtoBytes); section != "" {
		parts = append(parts, "Proto: "+section)
	}

	if c.TraceID != "" {
		trace := "Trace: " + c.TraceID
		if c.SpanID != "" {
			trace += " Span: " + c.SpanID
		}

		parts = append(parts, trace)
	}

	if c.HTTPMethod != "" || c.HTTPURL != "" {
		httpLine := "HTTP: " + strings.TrimSpace(c.HTTPMethod+" "+c.HTTPURL)
		if c.HTTPStatus != 0 {
			httpLine += " " + strconv.Itoa(c.HTTPStatus)
		}

		parts = append(parts, httpLine)
	}

	if c.SourceFile != "" {
		source := "Source: " + c.SourceFile
		if c.SourceLine > 0 {
			source += ":" + strconv.FormatInt(c.SourceLine, 10)
		}

		parts = append(parts, source)
	}

	if section := formatLabels(c.Labels, maxTraceLabels); section != "" {
		parts = append(parts, "Labels: "+section)
	}

	if c.ResourceType != "" {
		resource := "Resource: " + c.ResourceType
		if section := formatLabels(c.ResourceLabels, maxResourceLabels); section != "" {
			resource += " " + section
		}

		parts = append(parts, resource)
	}

	return logmodel.Truncate(strings.Join(parts, "\n"), logmodel.MaxEmbedTextBytes)
}

// serializeBounded renders a payload map as bounded JSON; empty maps render
// as the empty string.
func serializeBounded(payload map[string]any, limit int) string {
	if len(payload) == 0 {
		return ""
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}

	return logmodel.Truncate(string(data), limit)
}

// formatLabels renders up to limit labels as "k=v" pairs in sorted key
// order for determinism.
func formatLabels(labels map[string]string, limit int) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	if len(keys) > limit {
		keys = keys[:limit]
	}

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+labels[k])
	}

	return strings.Join(pairs, " ")
}
