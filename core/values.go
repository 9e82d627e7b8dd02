package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for attendance ids and date-only fields.
const DateLayout = "2006-01-02"

// AsTime converts the timestamp representations a store may hand back
// (time.Time, RFC 3339 or date strings, unix millis, {seconds,nanoseconds} maps)
// to a UTC time.Time. Absent or unreadable values default to now.
func AsTime(v interface{}) time.Time {
	if t, ok := timeValue(v); ok {
		return t
	}
	switch val := v.(type) {
	case int64:
		return time.UnixMilli(val).UTC()
	case int:
		return time.UnixMilli(int64(val)).UTC()
	case float64:
		return time.UnixMilli(int64(val)).UTC()
	case json.Number:
		if ms, err := val.Int64(); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return NowFunc().UTC()
}

// HasTime reports whether v holds a readable timestamp.
func HasTime(v interface{}) bool {
	if _, ok := timeValue(v); ok {
		return true
	}
	_, ok := asFloat(v)
	return ok
}

func timeValue(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val.UTC(), true
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return val.UTC(), true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(DateLayout, val); err == nil {
			return t, true
		}
	case map[string]interface{}:
		secs, ok := asFloat(val["seconds"])
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := asFloat(val["nanoseconds"])
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}
	return time.Time{}, false
}

func AsString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}

// AsBool is true only for a stored boolean true.
func AsBool(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

func AsDecimal(v interface{}) decimal.Decimal {
	switch val := v.(type) {
	case decimal.Decimal:
		return val
	case *decimal.Decimal:
		if val != nil {
			return *val
		}
	case string:
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	case json.Number:
		if d, err := decimal.NewFromString(val.String()); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(val)
	case float32:
		return decimal.NewFromFloat32(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	}
	return decimal.Zero
}

func AsInt(v interface{}) int {
	if f, ok := asFloat(v); ok {
		return int(f)
	}
	if s, ok := v.(string); ok {
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
	}
	return 0
}

// AsBoolMap reads a string to bool map, dropping non boolean entries.
func AsBoolMap(v interface{}) map[string]bool {
	out := make(map[string]bool)
	switch val := v.(type) {
	case map[string]bool:
		for k, b := range val {
			out[k] = b
		}
	case map[string]interface{}:
		for k, b := range val {
			if bb, ok := b.(bool); ok {
				out[k] = bb
			}
		}
	case Data:
		for k, b := range val {
			if bb, ok := b.(bool); ok {
				out[k] = bb
			}
		}
	}
	return out
}

func asFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case decimal.Decimal:
		f, _ := val.Float64()
		return f, true
	}
	return 0, false
}
