package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayKeyAtPinsSchoolTimezone(t *testing.T) {
	detroit, err := time.LoadLocation(DefaultSchoolTimezone)
	require.NoError(t, err)

	// 2024-03-15 01:30 UTC is still 2024-03-14 in Detroit (EDT, UTC-4).
	instant := time.Date(2024, 3, 15, 1, 30, 0, 0, time.UTC)
	require.Equal(t, "2024-03-14", DayKeyAt(instant, detroit))

	// The same instant expressed in Tokyo still lands on the same school day.
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	require.Equal(t, "2024-03-14", DayKeyAt(instant.In(tokyo), detroit))

	// Later the same UTC day it ticks over in Detroit too.
	require.Equal(t, "2024-03-15", DayKeyAt(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), detroit))
}

func TestParseDayKey(t *testing.T) {
	parsed, err := ParseDayKey("2024-03-15")
	require.NoError(t, err)
	require.Equal(t, 2024, parsed.Year())
	require.Equal(t, time.March, parsed.Month())
	require.Equal(t, 15, parsed.Day())

	for _, bad := range []string{"", "2024-3-15", "15-03-2024", "2024-02-30", "2024-03-15T00:00:00Z"} {
		_, err := ParseDayKey(bad)
		require.Error(t, err, "key=%s", bad)
	}
}

func TestValidDayKey(t *testing.T) {
	require.True(t, ValidDayKey("2024-12-01"))
	require.False(t, ValidDayKey("2024/12/01"))
}
