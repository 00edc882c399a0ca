package pulse

import (
	"time"

	"github.com/Enntity/pulse/internal/models"
)

// InActiveHours reports whether now falls inside the entity's allowed wake
// window. No configured window means always active. The comparison is lexical
// on "HH:MM" strings, which orders correctly for zero-padded 24-hour clocks.
// A start later than the end means the window wraps midnight.
//
// Must be re-evaluated on every attempt; a chain that starts inside the
// window can run past its edge, and the next attempt should notice.
func InActiveHours(hours *models.ActiveHours, now time.Time) bool {
	if hours == nil || !hours.Configured() {
		return true
	}

	if hours.Timezone != "" {
		if loc, err := time.LoadLocation(hours.Timezone); err == nil {
			now = now.In(loc)
		}
		// An unknown timezone falls back to the process's local clock
		// rather than disabling the entity outright.
	}

	current := now.Format("15:04")
	if hours.Start <= hours.End {
		return hours.Start <= current && current <= hours.End
	}
	return current >= hours.Start || current <= hours.End
}
