package dateonly

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", d.String())

	d, err = Parse("2024-05-01T23:30:00+05:30")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", d.String())

	_, err = Parse("01/05/2024")
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	var payload struct {
		ReportDate *Date `json:"reportDate"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"reportDate":"2024-02-29"}`), &payload))
	require.NotNil(t, payload.ReportDate)
	assert.Equal(t, 29, payload.ReportDate.Day())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"reportDate":"2024-02-29"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"reportDate":"tomorrow"}`), &payload))
}

func TestResolve(t *testing.T) {
	now := time.Date(2024, 5, 15, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		period     string
		wantPeriod string
		wantStart  string
	}{
		{"today", "today", "2024-05-15"},
		{"week", "week", "2024-05-08"},
		{"month", "month", "2024-05-01"},
		{"year", "year", "2024-01-01"},
		{"", "month", "2024-05-01"},
		{"decade", "month", "2024-05-01"},
	}
	for _, tt := range tests {
		r := Resolve(tt.period, now)
		assert.Equal(t, tt.wantPeriod, r.Period, tt.period)
		assert.Equal(t, tt.wantStart, r.Start.String(), tt.period)
		assert.Equal(t, "2024-05-15", r.End.String(), tt.period)
	}
}

func TestRange_Days(t *testing.T) {
	now := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, Resolve(PeriodToday, now).Days())
	assert.Equal(t, 8, Resolve(PeriodWeek, now).Days())
	assert.Equal(t, 15, Resolve(PeriodMonth, now).Days())
}
