package ui

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB"}

// FormatBytes renders n with a binary unit, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	if n < 1024 {
		return printer.Sprintf("%d B", n)
	}
	value := float64(n)
	i := 0
	for value >= 1024 && i < len(byteUnits)-1 {
		value /= 1024
		i++
	}
	return printer.Sprintf("%.1f %s", value, byteUnits[i])
}

// FormatSpeed renders a throughput, or "" when nothing was measured yet.
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 || math.IsInf(bytesPerSecond, 0) || math.IsNaN(bytesPerSecond) {
		return ""
	}
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatETA renders the remaining time rounded to the largest whole unit,
// or "" when unknown.
func FormatETA(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Minute:
		return printer.Sprintf("%ds left", int(math.Round(d.Seconds())))
	case d < time.Hour:
		return printer.Sprintf("%dmin left", int(math.Round(d.Minutes())))
	default:
		return printer.Sprintf("%dh left", int(math.Round(d.Hours())))
	}
}

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatProgress renders "done / size (pct%)".
func FormatProgress(done, size int64) string {
	if size <= 0 {
		return FormatBytes(done)
	}
	pct := float64(done) * 100 / float64(size)
	return FormatBytes(done) + " / " + FormatBytes(size) + printer.Sprintf(" (%.0f%%)", pct)
}
