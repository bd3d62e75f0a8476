package logmodel

// Severity names in canonical order.
const (
	SeverityDefault   = "DEFAULT"
	SeverityDebug     = "DEBUG"
	SeverityInfo      = "INFO"
	SeverityNotice    = "NOTICE"
	SeverityWarning   = "WARNING"
	SeverityError     = "ERROR"
	SeverityCritical  = "CRITICAL"
	SeverityAlert     = "ALERT"
	SeverityEmergency = "EMERGENCY"
)

// ErrorLevelThreshold is the severity level at and above which a record
// counts as an error.
const ErrorLevelThreshold = 500

// severityLevels maps severity names to their numeric level.
var severityLevels = map[string]int{
	SeverityDefault:   0,
	SeverityDebug:     100,
	SeverityInfo:      200,
	SeverityNotice:    300,
	SeverityWarning:   400,
	SeverityError:     500,
	SeverityCritical:  600,
	SeverityAlert:     700,
	SeverityEmergency: 800,
}

// SeverityLevel returns the numeric level for a severity name.
// Unknown names map to the DEFAULT level.
func SeverityLevel(severity string) int {
	level, ok := severityLevels[severity]
	if !ok {
		return 0
	}

	return level
}

// KnownSeverity reports whether the name is a member of the severity table.
func KnownSeverity(severity string) bool {
	_, ok := severityLevels[severity]

	return ok
}
