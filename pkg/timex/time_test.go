package timex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTime_UnixMethods(t *testing.T) {
	// 创建一个固定时间
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tt := Time(now)

	assert.Equal(t, now.Unix(), tt.Unix())
	assert.Equal(t, now.UnixMilli(), tt.UnixMilli())
	assert.Equal(t, now.UnixMicro(), tt.UnixMicro())
	assert.Equal(t, now.UnixNano(), tt.UnixNano())
}

func TestParseLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 8, 9, 10, 123000000, time.UTC)

	tests := []struct {
		name string
		in   string
	}{
		{"wire layout", "2024-03-05 08:09:10.123Z"},
		{"rfc3339", "2024-03-05T08:09:10.123Z"},
		{"offset", "2024-03-05T10:09:10.123+02:00"},
		{"sqlite without zone", "2024-03-05 08:09:10.123"},
		{"unix millis", "1709626150123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got.Time()), "got %s", got)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("yesterday")
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	in := Time(time.Date(2024, 3, 5, 8, 9, 10, 123000000, time.UTC))

	data, err := in.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-05 08:09:10.123Z"`, string(data))

	var out Time
	require.NoError(t, out.UnmarshalJSON(data))
	assert.True(t, in.Time().Equal(out.Time()))

	require.NoError(t, out.UnmarshalJSON([]byte("null")))
	assert.True(t, out.IsZero())
}

func TestScan(t *testing.T) {
	var tt Time
	require.NoError(t, tt.Scan("2024-03-05 08:09:10"))
	assert.Equal(t, 2024, tt.Time().Year())

	require.NoError(t, tt.Scan(nil))
	assert.True(t, tt.IsZero())

	assert.Error(t, tt.Scan(42))
}
