package utils

import "time"

// ParseRFC3339 parses a record timestamp, with or without fractional
// seconds.
func ParseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// CompactTimestamp formats t for use in file and directory names.
func CompactTimestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
