package normalize

import (
	"strings"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// Environment names.
const (
	envDev     = "dev"
	envStaging = "staging"
	envTest    = "test"
	envProd    = "prod"
)

// environmentLabelKeys are checked on record labels and resource labels.
var environmentLabelKeys = []string{"env", "environment"}

// deriveEnvironment resolves the deployment environment from labels,
// resource labels, or the service name suffix. Defaults to prod.
func deriveEnvironment(labels, resourceLabels map[string]string, serviceName string) string {
	for _, key := range environmentLabelKeys {
		if v, ok := labels[key]; ok && v != "" {
			return normalizeEnvironment(v)
		}
	}

	for _, key := range environmentLabelKeys {
		if v, ok := resourceLabels[key]; ok && v != "" {
			return normalizeEnvironment(v)
		}
	}

	switch {
	case strings.HasSuffix(serviceName, "-dev"):
		return envDev
	case strings.HasSuffix(serviceName, "-staging"):
		return envStaging
	case strings.HasSuffix(serviceName, "-test"):
		return envTest
	default:
		return envProd
	}
}

func normalizeEnvironment(v string) string {
	switch strings.ToLower(v) {
	case "dev", "development":
		return envDev
	case "staging", "stage":
		return envStaging
	case "test", "testing", "qa":
		return envTest
	case "prod", "production":
		return envProd
	default:
		return strings.ToLower(v)
	}
}

// correlationKeys maps source key spellings to canonical correlation names.
var correlationKeys = map[string]string{
	"request_id":      "request_id",
	"requestid":       "request_id",
	"session_id":      "session_id",
	"sessionid":       "session_id",
	"conversation_id": "conversation_id",
	"conversationid":  "conversation_id",
	"chat_id":         "chat_id",
	"chatid":          "chat_id",
	"thread_id":       "thread_id",
	"threadid":        "thread_id",
}

// collectCorrelationIDs pulls correlation identifiers from record labels and
// the json payload. Labels win over payload values on key collision.
func collectCorrelationIDs(labels map[string]string, jsonPayload map[string]any) map[string]string {
	out := make(map[string]string)

	for key, value := range jsonPayload {
		canonical, ok := correlationKeys[strings.ToLower(key)]
		if !ok {
			continue
		}

		if s, isString := value.(string); isString && s != "" {
			out[canonical] = s
		}
	}

	for key, value := range labels {
		canonical, ok := correlationKeys[strings.ToLower(key)]
		if !ok || value == "" {
			continue
		}

		out[canonical] = value
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// retentionClass selects the retention policy for a record.
func retentionClass(isAudit bool) string {
	if isAudit {
		return logmodel.RetentionAudit
	}

	return logmodel.RetentionStandard
}
