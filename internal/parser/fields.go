package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pjw7536/react-timeline2/internal/models"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e11 seconds is far in the future; 1e11 ms is early 1973.
const epochMillisThreshold = 1e11

// lookup returns the first non-nil value among the given keys.
func lookup(row models.RawRow, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// stringField returns the first present key rendered as a trimmed string.
func stringField(row models.RawRow, keys ...string) string {
	v, ok := lookup(row, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// timeField parses the first present key as an instant. Zone-less strings are
// read in loc.
func timeField(row models.RawRow, loc *time.Location, keys ...string) (time.Time, bool) {
	v, ok := lookup(row, keys...)
	if !ok {
		return time.Time{}, false
	}
	return parseInstant(v, loc)
}

func parseInstant(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		return parseInstantString(t, loc)
	case []byte:
		return parseInstantString(string(t), loc)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return fromEpoch(f)
		}
		return parseInstantString(t.String(), loc)
	case int:
		return fromEpoch(float64(t))
	case int32:
		return fromEpoch(float64(t))
	case int64:
		return fromEpoch(float64(t))
	case float64:
		return fromEpoch(t)
	}
	return time.Time{}, false
}

func parseInstantString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, true
	}
	ts, err := dateparse.ParseIn(s, loc)
	if err != nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts, true
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if math.Abs(f) >= epochMillisThreshold {
		return time.UnixMilli(int64(f)), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// ParseTime parses v as an instant the same way eventTime is read.
func ParseTime(v any, loc *time.Location) (time.Time, bool) {
	return parseInstant(v, loc)
}
