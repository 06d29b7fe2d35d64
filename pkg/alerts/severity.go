package alerts

// Severity is the alert tier derived from budget usage. Tiers are
// ordered so transitions can be compared directly.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityCritical
	SeverityExceeded
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	case SeverityExceeded:
		return "exceeded"
	default:
		return "none"
	}
}

func parseSeverity(s string) Severity {
	switch s {
	case "warning":
		return SeverityWarning
	case "critical":
		return SeverityCritical
	case "exceeded":
		return SeverityExceeded
	default:
		return SeverityNone
	}
}

// severityFor maps a usage fraction to a tier. Usage at or above 1.0 is
// exceeded regardless of the configured thresholds.
func severityFor(usage, warning, critical float64) Severity {
	switch {
	case usage >= 1.0:
		return SeverityExceeded
	case usage >= critical:
		return SeverityCritical
	case usage >= warning:
		return SeverityWarning
	default:
		return SeverityNone
	}
}
