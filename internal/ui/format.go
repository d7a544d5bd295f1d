package ui

import (
	"fmt"
	"time"
)

// FormatBytes renders n using binary units: 512 B, 1.5 KiB, 2.0 GiB.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed renders a bytes-per-second rate.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-- B/s"
	}
	return FormatBytes(int64(bytesPerSec)) + "/s"
}

// FormatElapsed rounds d for display next to a step.
func FormatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
