package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Enntity/pulse/internal/models"
)

func clockTime(hour, minute int) time.Time {
	return time.Date(2026, 6, 5, hour, minute, 0, 0, time.UTC)
}

func TestInActiveHours(t *testing.T) {
	daytime := &models.ActiveHours{Start: "09:00", End: "17:00"}
	overnight := &models.ActiveHours{Start: "22:00", End: "06:00"}

	tests := []struct {
		name     string
		hours    *models.ActiveHours
		now      time.Time
		expected bool
	}{
		{"no window is always active", nil, clockTime(3, 0), true},
		{"missing bounds are always active", &models.ActiveHours{Start: "09:00"}, clockTime(3, 0), true},
		{"daytime window midday", daytime, clockTime(12, 0), true},
		{"daytime window evening", daytime, clockTime(20, 0), false},
		{"daytime window at start", daytime, clockTime(9, 0), true},
		{"daytime window at end", daytime, clockTime(17, 0), true},
		{"overnight window before midnight", overnight, clockTime(23, 30), true},
		{"overnight window after midnight", overnight, clockTime(2, 0), true},
		{"overnight window midday", overnight, clockTime(12, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, InActiveHours(tt.hours, tt.now))
		})
	}
}

func TestInActiveHoursTimezone(t *testing.T) {
	hours := &models.ActiveHours{Start: "09:00", End: "17:00", Timezone: "America/New_York"}

	// 16:00 UTC in June is noon in New York.
	require.True(t, InActiveHours(hours, clockTime(16, 0)))

	// 02:00 UTC is 22:00 the previous evening in New York.
	require.False(t, InActiveHours(hours, clockTime(2, 0)))
}

func TestInActiveHoursUnknownTimezone(t *testing.T) {
	hours := &models.ActiveHours{Start: "00:00", End: "23:59", Timezone: "Mars/Olympus"}
	require.True(t, InActiveHours(hours, clockTime(12, 0)))
}
