// Package timeutil parses and normalizes timestamps per spec.md §4.C:
// ISO-8601 (with or without "Z"), RFC-3339 with offset, integer milliseconds,
// or a numeric string of milliseconds — always normalized to UTC internally.
package timeutil

import (
	"strconv"
	"strings"
	"time"

	"github.com/buffquant/simrun/internal/apierr"
)

// ParseFlexible accepts any of the formats in spec.md §4.C and returns a
// UTC time truncated to millisecond precision.
func ParseFlexible(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, apierr.InvalidTimestamp("timestamp is missing")
	case float64:
		return fromMillis(int64(x)), nil
	case int64:
		return fromMillis(x), nil
	case int:
		return fromMillis(int64(x)), nil
	case string:
		return parseString(x)
	default:
		return time.Time{}, apierr.InvalidTimestamp("unsupported timestamp type")
	}
}

func parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apierr.InvalidTimestamp("timestamp is empty")
	}

	// Pure-digit string: milliseconds since epoch.
	if isAllDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, apierr.InvalidTimestamp("unparseable millisecond timestamp")
		}
		return fromMillis(ms), nil
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, apierr.InvalidTimestamp("unparseable timestamp: " + s)
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatUTCMillis renders t as "YYYY-MM-DDTHH:MM:SS.sssZ", the canonical
// wire format for every timestamp except manifest.created_at.
func FormatUTCMillis(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format("2006-01-02T15:04:05.000Z")
}

// FormatManifestTimestamp renders t normalized to "+00:00" -> "Z" form, used
// only for manifest.created_at per spec.md §4.C.
func FormatManifestTimestamp(t time.Time) string {
	return FormatUTCMillis(t)
}

// ValidateRange enforces start_ts < end_ts when both are present.
func ValidateRange(start, end *time.Time) error {
	if start == nil || end == nil {
		return nil
	}
	if !start.Before(*end) {
		return apierr.InvalidTimeRange("start_ts must be strictly less than end_ts")
	}
	return nil
}

// ToMillis returns Unix milliseconds for t, used for equity/decision
// timestamps internally before formatting.
func ToMillis(t time.Time) int64 {
	return t.UTC().Truncate(time.Millisecond).UnixMilli()
}
