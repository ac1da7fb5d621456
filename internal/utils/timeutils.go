package utils

import "time"

// auditLayout renders UTC timestamps as ISO-8601 with microseconds and a Z suffix.
const auditLayout = "2006-01-02T15:04:05.000000Z"

// FormatAuditTime formats t for audit log lines and result rows.
func FormatAuditTime(t time.Time) string {
	return t.UTC().Format(auditLayout)
}

// ParseAuditTime is the inverse of FormatAuditTime.
func ParseAuditTime(value string) (time.Time, error) {
	return time.Parse(auditLayout, value)
}
