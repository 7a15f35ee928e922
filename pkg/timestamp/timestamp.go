// Package timestamp handles the phase timestamps the gateway daemon attaches to DPA
// transactions in verbose responses.
//
// Timestamps are int64 milliseconds since the Unix epoch. Zero means "not set": the
// daemon sends an empty string for a phase that never happened (a broadcast has no
// response, a timed out request no confirmation).
//
// The daemon writes ISO 8601 with milliseconds and a zone offset,
// "2023-05-04T10:20:30.123+02:00". Older daemons wrote the same without the offset,
// which is read as local time.
package timestamp

import (
	"strconv"
	"strings"
	"time"
)

// Daemon timestamp layouts, most specific first.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Format renders ms in the daemon's layout in the local zone.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("2006-01-02T15:04:05.000Z07:00")
}

// Parse converts a daemon timestamp to Unix milliseconds.
// Supports:
//   - string in any of the daemon layouts, or a decimal Unix timestamp
//   - float64 as produced by encoding/json, int64 and int
//
// Numbers above 1e12 are taken as milliseconds, smaller ones as seconds.
// Returns 0 for empty or unparseable input.
func Parse(input any) int64 {
	switch v := input.(type) {
	case nil:
		return 0
	case int64:
		if v > 1e12 || v <= 0 {
			return max(v, 0)
		}
		return v * 1000
	case int:
		return Parse(int64(v))
	case float64:
		if v > 1e12 || v <= 0 {
			return max(int64(v), 0)
		}
		return int64(v * 1000)
	case string:
		return parseString(strings.TrimSpace(v))
	default:
		return 0
	}
}

func parseString(s string) int64 {
	if s == "" {
		return 0
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ToUnixMs(t)
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Parse(n)
	}
	return 0
}

// Between returns the duration between two timestamps.
// Returns 0 if either timestamp is zero.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return time.UnixMilli(end).Sub(time.UnixMilli(start))
}
