package normalize

import (
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

const msPerSecond = 1000

// applyHTTPFacet projects the source httpRequest object onto the canonical
// HTTP facet. Missing or malformed fields are left at their zero values.
func applyHTTPFacet(c *logmodel.CanonicalLog, httpRequest map[string]any) {
	if len(httpRequest) == 0 {
		return
	}

	c.HTTPMethod = stringField(httpRequest, "requestMethod")
	c.HTTPURL = stringField(httpRequest, "requestUrl")
	c.HTTPStatus = int(numberField(httpRequest, "status"))
	c.HTTPUserAgent = stringField(httpRequest, "userAgent")
	c.HTTPRemoteIP = stringField(httpRequest, "remoteIp")
	c.HTTPRequestSize = int64(numberField(httpRequest, "requestSize"))
	c.HTTPResponseSize = int64(numberField(httpRequest, "responseSize"))
	c.HTTPLatencyMS = parseLatencyMS(httpRequest["latency"])
}

// parseLatencyMS converts a latency value to milliseconds. Sources emit
// either duration strings like "0.123456s" or plain numbers (already ms).
func parseLatencyMS(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		seconds, ok := strings.CutSuffix(v, "s")
		if !ok {
			return passthroughNumeric(v)
		}

		parsed, err := strconv.ParseFloat(seconds, 64)
		if err != nil {
			return 0
		}

		return parsed * msPerSecond
	default:
		return 0
	}
}

func passthroughNumeric(v string) float64 {
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}

	return parsed
}

// stringField returns a string value from a loosely typed source object.
func stringField(obj map[string]any, key string) string {
	v, ok := obj[key].(string)
	if !ok {
		return ""
	}

	return v
}

// numberField returns a numeric value from a loosely typed source object,
// accepting both native numbers and numeric strings.
func numberField(obj map[string]any, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		return passthroughNumeric(v)
	default:
		return 0
	}
}
