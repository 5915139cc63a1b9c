// Package util provides utility functions for formatting and common operations.
package util

import (
	"fmt"
	"math"
)

const (
	KiB = 1024
	MiB = KiB * 1024
	GiB = MiB * 1024
)

// FormatBytes formats bytes with appropriate binary units (B, KiB, MiB, GiB).
func FormatBytes(bytes uint64) string {
	bf := float64(bytes)
	switch {
	case bf >= GiB:
		return fmt.Sprintf("%.2f GiB", bf/GiB)
	case bf >= MiB:
		return fmt.Sprintf("%.2f MiB", bf/MiB)
	case bf >= KiB:
		return fmt.Sprintf("%.2f KiB", bf/KiB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatDuration formats seconds as HH:MM:SS.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "??:??:??"
	}
	return FormatDurationFromSecs(int64(seconds))
}

// FormatDurationFromSecs formats seconds as HH:MM:SS from an int64.
func FormatDurationFromSecs(secs int64) string {
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// FormatETA formats a remaining time estimate as "Xm Ys".
// Minutes are not folded into hours so long runs read as e.g. "135m 4s".
func FormatETA(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "--"
	}
	total := int64(seconds)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

// FormatFPS formats a processing rate with two decimals.
func FormatFPS(fps float64) string {
	if math.IsNaN(fps) || math.IsInf(fps, 0) {
		return "-- fps"
	}
	return fmt.Sprintf("%.2f fps", fps)
}

// Percent returns done/total as a percentage clamped to [0, 100].
func Percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	return math.Max(0, math.Min(100, p))
}
