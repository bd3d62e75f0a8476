package normalize

import (
	"regexp"

	"github.com/Sumatoshi-tech/logfang/internal/logmodel"
)

// PII pattern groups, scanned in risk order. The first matching group wins.
// All patterns run case-insensitively; the email TLD class is therefore
// effectively "letters >= 2".
var (
	piiHighPatterns = compilePatterns([]string{
		`password\s*[=:]\s*\S+`,
		`secret\s*[=:]\s*\S+`,
		`api[_-]?key\s*[=:]\s*\S+`,
		`token\s*[=:]\s*\S+`,
		`authorization\s*[=:]\s*bearer`,
		`private[_-]?key`,
		`access[_-]?token`,
		`refresh[_-]?token`,
	})

	piiModeratePatterns = compilePatterns([]string{
		`[\w.%+-]+@[\w.-]+\.[a-z]{2,}`,
		`\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`,
		`ssn\s*[=:]\s*\d`,
	})

	piiLowPatterns = compilePatterns([]string{
		`user[_-]?id`,
		`account[_-]?id`,
		`customer[_-]?id`,
	})
)

func compilePatterns(exprs []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+expr))
	}

	return compiled
}

// ClassifyPIIRisk scans the given texts and returns the highest risk level
// found across them.
func ClassifyPIIRisk(texts ...string) string {
	for _, group := range []struct {
		patterns []*regexp.Regexp
		risk     string
	}{
		{piiHighPatterns, logmodel.PIIRiskHigh},
		{piiModeratePatterns, logmodel.PIIRiskModerate},
		{piiLowPatterns, logmodel.PIIRiskLow},
	} {
		for _, pattern := range group.patterns {
			for _, text := range texts {
				if text != "" && pattern.MatchString(text) {
					return group.risk
				}
			}
		}
	}

	return logmodel.PIIRiskNone
}
