package granularity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, s := range []string{"15min", "hour", "day", "week", "month"} {
		g, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, g.String())
	}

	_, err := Parse("year")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGranularity))

	assert.True(t, FifteenMinutes < Hour && Hour < Day && Day < Week && Week < Month)
	assert.Equal(t, "fifteenMinBucket", FifteenMinutes.IndexField())
	assert.Equal(t, "week", Week.IndexField())
}

func TestFloorAndAdvance(t *testing.T) {
	// Wednesday
	ts := time.Date(2024, 3, 13, 10, 37, 12, 5, time.UTC)

	tests := []struct {
		g       Granularity
		floor   time.Time
		advance time.Time
	}{
		{FifteenMinutes, time.Date(2024, 3, 13, 10, 30, 0, 0, time.UTC), time.Date(2024, 3, 13, 10, 45, 0, 0, time.UTC)},
		{Hour, time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC), time.Date(2024, 3, 13, 11, 0, 0, 0, time.UTC)},
		{Day, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)},
		{Week, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)},
		{Month, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.g.String(), func(t *testing.T) {
			floor := tt.g.Floor(ts)
			assert.Equal(t, tt.floor, floor)
			assert.Equal(t, tt.advance, tt.g.Advance(floor))
		})
	}

	// month advance follows the calendar, not a fixed number of days
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Month.Advance(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAdjust(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		window    time.Duration
		requested Granularity
		want      Granularity
	}{
		{"ten minutes of hours", 10 * time.Minute, Hour, FifteenMinutes},
		{"ten minutes of 15min", 10 * time.Minute, FifteenMinutes, FifteenMinutes},
		{"one hour of hours", time.Hour, Hour, Hour},
		{"one hour of weeks", time.Hour, Week, Day},
		{"just under an hour of weeks", time.Hour - time.Second, Week, Hour},
		{"exactly fifteen minutes of hours", 15 * time.Minute, Hour, Hour},
		{"just under fifteen minutes of hours", 15*time.Minute - time.Second, Hour, FifteenMinutes},
		{"half hour of days", 30 * time.Minute, Day, Hour},
		{"half hour of hours", 30 * time.Minute, Hour, Hour},
		{"single day of months", 24*time.Hour - time.Second, Month, Day},
		{"exactly one day of months", 24 * time.Hour, Month, Day},
		{"one day and a second of months", 24*time.Hour + time.Second, Month, Week},
		{"three days of months", 3 * 24 * time.Hour, Month, Week},
		{"three days of weeks", 3 * 24 * time.Hour, Week, Week},
		{"just under seven days of months", 7*24*time.Hour - time.Second, Month, Week},
		{"exactly seven days of months", 7 * 24 * time.Hour, Month, Month},
		{"eight days of months", 8 * 24 * time.Hour, Month, Month},
		{"month of months", 31 * 24 * time.Hour, Month, Month},
		{"month of 15min", 31 * 24 * time.Hour, FifteenMinutes, FifteenMinutes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Adjust(base, base.Add(tt.window), tt.requested, nil)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got, tt.requested)
		})
	}
}
