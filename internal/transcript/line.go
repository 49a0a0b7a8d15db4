package transcript

import (
	"fmt"
	"strings"
)

// Line is one transcribed utterance. Times are seconds relative to session
// start. Lines are immutable and the per-session transcript is append-only.
type Line struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
}

// Format renders the line as "[MM:SS → MM:SS] Speaker N: text".
func (l Line) Format() string {
	return fmt.Sprintf("[%s → %s] %s: %s",
		FormatTimestamp(l.StartTime), FormatTimestamp(l.EndTime), l.Speaker, l.Text)
}

// FormatTimestamp renders seconds as zero-padded MM:SS with floor-truncated
// seconds. Durations are assumed under 100 minutes, so no hour component.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}

	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Join renders an ordered transcript as one formatted line per row.
func Join(lines []Line) string {
	if len(lines) == 0 {
		return ""
	}

	formatted := make([]string, len(lines))
	for i, l := range lines {
		formatted[i] = l.Format()
	}

	return strings.Join(formatted, "\n")
}
