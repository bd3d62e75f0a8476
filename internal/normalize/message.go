package normalize

import (
	"encoding/json"
	"strings"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// maxInlineJSONBytes bounds the serialized json payload used as primary
// message content when no better source exists.
const maxInlineJSONBytes = 1000

// Message categories produced by the heuristic classifier.
const (
	CategoryAudit   = "audit"
	CategoryError   = "error"
	CategoryRequest = "request"
	CategoryMetric  = "metric"
	CategoryDebug   = "debug"
	CategoryWarning = "warning"
	CategoryInfo    = "info"
)

// metricKeywords mark a message as metric-bearing.
var metricKeywords = []string{"metric", "gauge", "counter", "histogram"}

// buildMessage assembles the unified message from the available parts, in
// fixed order: primary content, HTTP bracket, appended error. Bounded at
// MaxMessageBytes.
func buildMessage(c *logmodel.CanonicalLog) string {
	var parts []string

	primary := primaryContent(c)
	if primary != "" {
		parts = append(parts, primary)
	}

	if c.HTTPMethod != "" || c.HTTPURL != "" {
		parts = append(parts, "[HTTP "+strings.TrimSpace(c.HTTPMethod+" "+c.HTTPURL)+"]")
	}

	if c.ErrorMessage != "" && !strings.Contains(primary, c.ErrorMessage) {
		parts = append(parts, "Error: "+c.ErrorMessage)
	}

	return logmodel.Truncate(strings.Join(parts, " "), logmodel.MaxMessageBytes)
}

// primaryContent picks the first available message source: text payload,
// json message field, serialized json, or an audit summary line.
func primaryContent(c *logmodel.CanonicalLog) string {
	if c.TextPayload != "" {
		return c.TextPayload
	}

	if msg, ok := c.JSONPayload["message"].(string); ok && msg != "" {
		return msg
	}

	if len(c.JSONPayload) > 0 {
		serialized, err := json.Marshal(c.JSONPayload)
		if err == nil {
			return logmodel.Truncate(string(serialized), maxInlineJSONBytes)
		}
	}

	if c.AuditService != "" || c.AuditMethod != "" {
		return strings.TrimSpace("Audit: " + c.AuditService + " " + c.AuditMethod)
	}

	return ""
}

// summarize produces the bounded message summary. Truncated summaries carry
// a trailing ellipsis.
func summarize(message string) string {
	runes := []rune(message)
	if len(runes) <= logmodel.MaxSummaryChars {
		return message
	}

	return string(runes[:logmodel.MaxSummaryChars]) + "..."
}

// categorize applies the deterministic category heuristic table.
func categorize(c *logmodel.CanonicalLog) string {
	switch {
	case strings.Contains(c.SourceTable, "audit") || c.AuditMethod != "":
		return CategoryAudit
	case c.SeverityLevel >= logmodel.ErrorLevelThreshold || c.ErrorMessage != "":
		return CategoryError
	case c.HTTPMethod != "" || c.HTTPURL != "":
		return CategoryRequest
	case containsAnyFold(c.Message, metricKeywords):
		return CategoryMetric
	case c.Severity == logmodel.SeverityDebug:
		return CategoryDebug
	case c.Severity == logmodel.SeverityWarning:
		return CategoryWarning
	default:
		return CategoryInfo
	}
}

func containsAnyFold(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	return false
}
