package timestamp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	want := time.Date(2023, 1, 15, 12, 30, 45, 0, time.UTC)
	wantMs := want.Add(123 * time.Millisecond)

	tests := []struct {
		name  string
		input any
		want  time.Time
		ok    bool
	}{
		{"rfc3339", "2023-01-15T12:30:45Z", want, true},
		{"rfc3339 offset", "2023-01-15T14:30:45+02:00", want, true},
		{"seconds", int64(1673785845), want, true},
		{"milliseconds", int64(1673785845123), wantMs, true},
		{"fractional seconds", 1673785845.123, wantMs, true},
		{"numeric string", "1673785845", want, true},
		{"json number", json.Number("1673785845123"), wantMs, true},
		{"time", want.In(time.FixedZone("x", 3600)), want, true},
		{"zero", int64(0), time.Time{}, true},
		{"empty", "", time.Time{}, true},
		{"nil", nil, time.Time{}, true},
		{"garbage", "yesterday", time.Time{}, false},
		{"unsupported type", []int{1}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestTime_JSON(t *testing.T) {
	var v struct {
		At Time `json:"at"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"at":1673785845}`), &v))
	assert.Equal(t, int64(1673785845), v.At.Unix())

	require.NoError(t, json.Unmarshal([]byte(`{"at":"2023-01-15T12:30:45.5Z"}`), &v))
	assert.Equal(t, 500*time.Millisecond, time.Duration(v.At.Nanosecond()))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"2023-01-15T12:30:45.500Z"}`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"at":null}`), &v))
	assert.True(t, v.At.IsZero())
	out, err = json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":null}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"at":"tuesday"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"at":true}`), &v))
}
