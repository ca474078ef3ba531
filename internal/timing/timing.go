// Package timing holds the pure wall-clock helpers the tracker is built on.
// Client timestamps can be skewed, so every delta is clamped to zero instead
// of surfacing a negative duration to the caller.
package timing

import (
	"fmt"
	"time"
)

// Elapsed returns the wall-clock seconds between start and end.
// A negative delta (clock skew between client samples) clamps to 0.
func Elapsed(start, end time.Time) float64 {
	secs := end.Sub(start).Seconds()
	if secs < 0 {
		return 0
	}
	return secs
}

// ClosePause returns the length of a pause interval in seconds, clamped to 0.
func ClosePause(pauseStartedAt, now time.Time) float64 {
	return Elapsed(pauseStartedAt, now)
}

// FormatMMSS renders seconds as zero-padded "MM:SS". Both parts floor so the
// displayed total never disagrees with summed parts.
func FormatMMSS(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
