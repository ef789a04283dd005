// Package timestamp parses the event dates devices report.
//
// Devices send dates as RFC3339 strings, as Unix seconds or as Unix
// milliseconds, either as JSON numbers or as numeric strings. Numbers above
// 1e12 are taken to be milliseconds, anything smaller is seconds.
package timestamp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// msThreshold is 1e12: September 2001 in milliseconds, year 33658 in seconds.
const msThreshold = 1e12

// Parse converts a reported date to a UTC time. It returns false for input it
// does not understand. Zero and empty input parse to the zero time.
func Parse(input any) (time.Time, bool) {
	switch v := input.(type) {
	case nil:
		return time.Time{}, true
	case int64:
		return fromNumber(float64(v), v), true
	case int:
		return Parse(int64(v))
	case float64:
		return fromNumber(v, int64(v)), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return Parse(n)
		}
		if f, err := v.Float64(); err == nil {
			return Parse(f)
		}
		return time.Time{}, false
	case string:
		return parseString(v)
	case time.Time:
		return v.UTC(), true
	default:
		return time.Time{}, false
	}
}

func fromNumber(f float64, i int64) time.Time {
	switch {
	case f == 0:
		return time.Time{}
	case f > msThreshold:
		return time.UnixMilli(i).UTC()
	default:
		return time.UnixMilli(int64(math.Round(f * 1000))).UTC()
	}
}

func parseString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Parse(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Parse(f)
	}
	return time.Time{}, false
}

// Time is a time.Time that unmarshals from any format Parse accepts and
// marshals as RFC3339 with milliseconds.
type Time struct {
	time.Time
}

// Of wraps t.
func Of(t time.Time) Time {
	return Time{Time: t}
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, ok := Parse(raw)
	if !ok {
		return fmt.Errorf("timestamp: cannot parse %s", data)
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}
