package normalize

import (
	"regexp"
	"strings"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// errorMessagePatterns are scanned over the text payload when the record
// carries no explicit error message. First match wins.
var errorMessagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)error[:\s]+(.+)`),
	regexp.MustCompile(`(?i)exception[:\s]+(.+)`),
	regexp.MustCompile(`(?i)failed[:\s]+(.+)`),
}

// extractError fills the error facet from the text payload: a message via
// pattern scan, and a bounded stack trace when the text looks like one.
func extractError(c *logmodel.CanonicalLog, text string) {
	if text == "" {
		return
	}

	if c.ErrorMessage == "" {
		for _, pattern := range errorMessagePatterns {
			match := pattern.FindStringSubmatch(text)
			if match != nil {
				c.ErrorMessage = strings.TrimSpace(firstLine(match[1]))

				break
			}
		}
	}

	if c.ErrorStackTrace == "" && looksLikeStackTrace(text) {
		c.ErrorStackTrace = logmodel.Truncate(text, logmodel.MaxStackBytes)
	}
}

// looksLikeStackTrace detects Python tracebacks and JVM/Go style frame lines.
func looksLikeStackTrace(text string) bool {
	if strings.Contains(text, "Traceback") {
		return true
	}

	for line := range strings.Lines(text) {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "at ") {
			return true
		}
	}

	return false
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")

	return line
}
