package cache

import (
	"fmt"
	"time"
)

// SecToMin converts a duration in seconds to a formatted string (MM:SS or HH:MM:SS).
// It returns "0:00" for negative inputs.
func SecToMin(seconds int) string {
	if seconds < 0 {
		return "0:00"
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// Elapsed renders a playback position, or "-" when it is unknown.
func Elapsed(d time.Duration, known bool) string {
	if !known {
		return "-"
	}
	return SecToMin(int(d / time.Second))
}
