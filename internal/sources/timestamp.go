package sources

import (
	"encoding/json"
	"strconv"

	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

// MillisecondThreshold separates second-resolution from millisecond-
// resolution epoch integers under the "auto" unit policy. Values below
// it (before roughly 2286 in seconds, after 2001 in milliseconds) are
// read as seconds. Cursor writes milliseconds; Windsurf entries vary.
const MillisecondThreshold = int64(1_000_000_000_000)

// TimestampFromInt interprets a bare epoch integer under the configured
// unit policy ("auto", "ms", "s") and returns a millisecond timestamp.
func TimestampFromInt(v int64, unit string) schema.Timestamp {
	if v <= 0 {
		return schema.Timestamp{}
	}
	switch unit {
	case "s":
		return schema.FromMillis(v * 1000)
	case "ms":
		return schema.FromMillis(v)
	default: // "auto"
		if v < MillisecondThreshold {
			return schema.FromMillis(v * 1000)
		}
		return schema.FromMillis(v)
	}
}

// ParseTimestamp converts whatever a JSON decode produced for a
// timestamp field into a schema.Timestamp. Strings are kept in their
// ISO form; numbers run through the unit policy. Anything else is a
// zero timestamp.
func ParseTimestamp(v any, unit string) schema.Timestamp {
	switch t := v.(type) {
	case nil:
		return schema.Timestamp{}
	case float64:
		return TimestampFromInt(int64(t), unit)
	case int64:
		return TimestampFromInt(t, unit)
	case int:
		return TimestampFromInt(int64(t), unit)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return TimestampFromInt(n, unit)
		}
		if f, err := t.Float64(); err == nil {
			return TimestampFromInt(int64(f), unit)
		}
		return schema.Timestamp{}
	case string:
		if t == "" {
			return schema.Timestamp{}
		}
		// Numeric strings show up in Windsurf entries.
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return TimestampFromInt(n, unit)
		}
		return schema.FromISO(t)
	default:
		return schema.Timestamp{}
	}
}
