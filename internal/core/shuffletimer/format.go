package shuffletimer

import (
	"fmt"
	"strings"
)

// FormatClock converts a number of seconds into a MM:SS string.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatTooltip renders "(MM:SS | MM:SS) extra" while running and
// "Timer stopped extra" otherwise.
func FormatTooltip(snapshot Snapshot, extra string) string {
	status := "Timer stopped"
	if snapshot.Running {
		status = fmt.Sprintf("(%s | %s)", FormatClock(snapshot.RemainingSeconds), FormatClock(snapshot.IntervalMinutes*60))
	}
	return strings.TrimSpace(status + " " + extra)
}
