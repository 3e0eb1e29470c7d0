package utils

// Timestamp helpers shared by the store (ms-epoch fields) and CSV export
// (ISO-8601 columns).

import "time"

// UnixMillis returns the current time in Unix milliseconds.
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis converts Unix milliseconds to a UTC time.Time.
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// FormatISO8601 renders t as an ISO-8601 / RFC 3339 string in UTC.
func FormatISO8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// FormatISO8601Millis renders a ms-epoch timestamp as ISO-8601 in UTC.
func FormatISO8601Millis(ms int64) string {
	return FormatISO8601(FromUnixMillis(ms))
}

// ParseISO8601 parses an ISO-8601 / RFC 3339 string into UTC.
func ParseISO8601(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
