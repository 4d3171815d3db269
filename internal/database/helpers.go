package database

import (
	"database/sql"
	"strings"
	"time"
)

// TimeLayout is a fixed-width UTC layout so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp, returning the zero time for NULL or
// malformed values.
func ParseTime(value sql.NullString) time.Time {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value.String); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05", value.String); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// ParseTimePtr is ParseTime for optional columns.
func ParseTimePtr(value sql.NullString) *time.Time {
	t := ParseTime(value)
	if t.IsZero() {
		return nil
	}
	return &t
}

// NullableString maps empty strings to NULL.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime maps nil or zero times to NULL.
func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return FormatTime(*value)
}

// BoolToInt stores booleans as 0/1 integers.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Placeholders returns "?,?,..." with count entries.
func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
