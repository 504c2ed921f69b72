package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/rowsync/pkg/record"
)

// datetimeLayouts are tried in order when a datetime arrives as text.
// Zone-less layouts are read as UTC.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// Value converts raw into the representation expected for kind. Absent,
// null, and empty-string values become nil for every kind, as do values that
// cannot be converted.
func Value(kind Kind, raw any) any {
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok && s == "" {
		return nil
	}

	switch kind {
	case KindNumber:
		return toNumber(raw)
	case KindDatetime:
		return toMillis(raw)
	case KindBoolean:
		return toBool(raw)
	case KindJSON:
		return toJSON(raw)
	default:
		return record.Text(raw)
	}
}

func toNumber(raw any) any {
	f, ok := Float(raw)
	if !ok {
		return nil
	}
	return f
}

// Float coerces raw into a finite float64. Booleans count as 1 and 0.
func Float(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint64:
		f = float64(v)
	case uint32:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toMillis(raw any) any {
	ms, ok := Millis(raw)
	if !ok {
		return nil
	}
	return ms
}

// Millis converts raw into epoch milliseconds. Numbers are taken as epoch
// milliseconds already; text is parsed with the supported layouts.
func Millis(raw any) (int64, bool) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return 0, false
		}
		return v.UnixMilli(), true
	case utc.Time:
		if v.IsZero() {
			return 0, false
		}
		return v.Time.UnixMilli(), true
	case *utc.Time:
		if v == nil || v.IsZero() {
			return 0, false
		}
		return v.Time.UnixMilli(), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return finiteMillis(f)
		}
		t, ok := ParseTime(s, time.UTC)
		if !ok {
			return 0, false
		}
		return t.UnixMilli(), true
	case bool:
		return 0, false
	}
	if f, ok := Float(raw); ok {
		return finiteMillis(f)
	}
	return 0, false
}

func finiteMillis(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// ParseTime parses s with the supported datetime layouts. Layouts without a
// zone are interpreted in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toBool(raw any) any {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return true
		}
		return f != 0
	}
	if f, ok := Float(raw); ok {
		return f != 0
	}
	return true
}

func toJSON(raw any) any {
	if s, ok := raw.(string); ok {
		return s
	}
	s, err := record.CanonicalJSON(raw)
	if err != nil {
		return nil
	}
	return s
}
